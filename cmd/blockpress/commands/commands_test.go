package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newSite scaffolds a site project and returns its config path.
func newSite(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = filepath.Join(t.TempDir(), "handbook")
	if _, err := execute(t, "init", dir); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return dir, filepath.Join(dir, "blockpress.yaml")
}

func TestDocumentWorkflow(t *testing.T) {
	dir, cfgPath := newSite(t)

	out, err := execute(t, "-c", cfgPath, "docs", "create", "Welcome")
	if err != nil {
		t.Fatalf("docs create failed: %v", err)
	}
	if !strings.HasPrefix(out, "Created welcome (") {
		t.Errorf("unexpected create output: %s", out)
	}

	out, err = execute(t, "-c", cfgPath, "docs", "import", "welcome", filepath.Join(dir, "docs/welcome.md"))
	if err != nil {
		t.Fatalf("docs import failed: %v", err)
	}
	if !strings.Contains(out, "into welcome") {
		t.Errorf("unexpected import output: %s", out)
	}

	out, err = execute(t, "-c", cfgPath, "docs", "list", "--format", "json")
	if err != nil {
		t.Fatalf("docs list failed: %v", err)
	}
	var listed []map[string]any
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("docs list output is not JSON: %v\n%s", err, out)
	}
	if len(listed) != 1 || listed[0]["state"] != "drafting" || listed[0]["title"] != "Welcome" {
		t.Errorf("listed = %v", listed)
	}

	out, err = execute(t, "-c", cfgPath, "docs", "publish", "welcome")
	if err != nil {
		t.Fatalf("docs publish failed: %v", err)
	}
	if !strings.Contains(out, "version 1") || !strings.Contains(out, "http://localhost:8080/p/welcome?v=1") {
		t.Errorf("unexpected publish output: %s", out)
	}

	// publishing by id works too
	id, _ := listed[0]["id"].(string)
	if _, err := execute(t, "-c", cfgPath, "docs", "publish", id); err != nil {
		t.Fatalf("publish by id failed: %v", err)
	}

	out, err = execute(t, "-c", cfgPath, "docs", "versions", "welcome", "--format", "csv")
	if err != nil {
		t.Fatalf("docs versions failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || lines[0] != "published,url,version" {
		t.Errorf("unexpected versions output: %q", out)
	}

	htmlPath := filepath.Join(dir, "welcome.html")
	if _, err := execute(t, "-c", cfgPath, "docs", "render", "welcome", "--version", "1", "-o", htmlPath); err != nil {
		t.Fatalf("docs render failed: %v", err)
	}
	html := readFile(t, htmlPath)
	for _, want := range []string{"Your first published page", "Edit this draft over the editing session"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q:\n%s", want, html)
		}
	}
	if strings.Contains(html, "data-action") {
		t.Error("public render should carry no editing affordances")
	}

	out, err = execute(t, "-c", cfgPath, "docs", "list", "--query", "nothing-matches")
	if err != nil {
		t.Fatalf("docs list failed: %v", err)
	}
	if !strings.Contains(out, "No items.") {
		t.Errorf("unexpected empty list output: %s", out)
	}
}

func TestImportReplacesTitle(t *testing.T) {
	dir, cfgPath := newSite(t)
	if _, err := execute(t, "-c", cfgPath, "docs", "create", "Welcome"); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "-c", cfgPath, "docs", "import", "welcome", filepath.Join(dir, "docs/welcome.md"), "--title"); err != nil {
		t.Fatalf("docs import failed: %v", err)
	}
	out, err := execute(t, "-c", cfgPath, "docs", "list", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"title": "Welcome to Handbook"`) {
		t.Errorf("Expected imported title, got: %s", out)
	}
}

func TestDocumentCommandErrors(t *testing.T) {
	_, cfgPath := newSite(t)
	if _, err := execute(t, "-c", cfgPath, "docs", "create", "Empty"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing document", []string{"docs", "publish", "ghost"}, `no document with id or slug "ghost"`},
		{"nothing to publish", []string{"docs", "publish", "empty"}, "no draft to publish"},
		{"unknown version", []string{"docs", "render", "empty", "--version", "3"}, "not found"},
		{"bad mode", []string{"docs", "render", "empty", "--mode", "print"}, "unknown mode"},
		{"bad format", []string{"docs", "list", "--format", "xml"}, "unknown format"},
		{"missing markdown", []string{"docs", "import", "empty", "nope.md"}, "failed to read nope.md"},
		{"invalid slug", []string{"docs", "create", "Bad", "--slug", "Not Valid"}, "invalid slug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"-c", cfgPath}, tt.args...)...)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "-c", filepath.Join(t.TempDir(), "nope.yaml"), "docs", "list")
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v", err)
	}
}

func TestComponentCommands(t *testing.T) {
	dir, cfgPath := newSite(t)

	out, err := execute(t, "-c", cfgPath, "components", "list", "--origin", "seed", "--format", "json")
	if err != nil {
		t.Fatalf("components list failed: %v", err)
	}
	if !strings.Contains(out, `"key": "notice"`) {
		t.Errorf("Expected seeded component, got: %s", out)
	}

	out, err = execute(t, "-c", cfgPath, "components", "check", filepath.Join(dir, "components/badge.js"))
	if err != nil {
		t.Fatalf("components check failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "(badge)") {
		t.Errorf("unexpected check output: %s", out)
	}

	pricing := filepath.Join(dir, "pricing.yaml")
	content := `key: pricing
name: Pricing
category: commerce
default_config:
  plan: Basic
code: |
  export default ({ plan }) => h("div", { className: "pricing" }, plan)
`
	if err := os.WriteFile(pricing, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if out, err := execute(t, "-c", cfgPath, "components", "add", pricing); err != nil {
		t.Fatalf("components add failed: %v\n%s", err, out)
	}

	// the stored component is restored by the next run
	out, err = execute(t, "-c", cfgPath, "components", "list", "--origin", "custom")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "pricing") || !strings.Contains(out, "1 item(s)") {
		t.Errorf("Expected stored component, got: %s", out)
	}

	if _, err := execute(t, "-c", cfgPath, "components", "remove", "pricing"); err != nil {
		t.Fatalf("components remove failed: %v", err)
	}
	if _, err := execute(t, "-c", cfgPath, "components", "remove", "pricing"); err == nil || !strings.Contains(err.Error(), "is not stored") {
		t.Errorf("second remove error = %v", err)
	}
	if _, err := execute(t, "-c", cfgPath, "components", "remove", "hero"); err == nil || !strings.Contains(err.Error(), "cannot be removed") {
		t.Errorf("builtin remove error = %v", err)
	}
}

func TestComponentCheckFailure(t *testing.T) {
	dir, cfgPath := newSite(t)
	bad := filepath.Join(dir, "broken.js")
	if err := os.WriteFile(bad, []byte(`export default () => h("script", null, "x")`), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "-c", cfgPath, "components", "check", bad, filepath.Join(dir, "components/badge.js"))
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(out, "FAIL "+bad) {
		t.Errorf("unexpected check output: %s", out)
	}
}
