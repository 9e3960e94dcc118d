package commands

import (
	"bytes"
	"strings"
	"testing"
)

func TestOutputTable(t *testing.T) {
	data := rows{
		{"title": "Guide", "id": "a1"},
		{"title": strings.Repeat("x", 80), "id": "b2"},
	}

	var buf bytes.Buffer
	if err := outputTable(&buf, data); err != nil {
		t.Fatalf("outputTable failed: %v", err)
	}
	lines := strings.Split(buf.String(), "\n")

	if !strings.HasPrefix(lines[0], "id ") {
		t.Errorf("Expected id as the first column, got %q", lines[0])
	}
	if !strings.Contains(buf.String(), strings.Repeat("x", maxColumnWidth-3)+"...") {
		t.Error("Expected long values to be truncated")
	}
	if !strings.Contains(buf.String(), "2 item(s)") {
		t.Error("Expected '2 item(s)' count")
	}
}

func TestOutputCSV(t *testing.T) {
	data := rows{
		{"slug": "guide", "title": "Guide, part 1"},
		{"slug": "faq"},
	}

	var buf bytes.Buffer
	if err := outputCSV(&buf, data); err != nil {
		t.Fatalf("outputCSV failed: %v", err)
	}
	want := "slug,title\nguide,\"Guide, part 1\"\nfaq,\n"
	if buf.String() != want {
		t.Errorf("outputCSV = %q, want %q", buf.String(), want)
	}
}

func TestWriteRows(t *testing.T) {
	data := rows{{"id": "a1"}}

	var buf bytes.Buffer
	if err := writeRows(&buf, "json", data); err != nil {
		t.Fatalf("writeRows json failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"id": "a1"`) {
		t.Errorf("unexpected JSON: %s", buf.String())
	}

	if err := writeRows(&buf, "yaml", data); err == nil {
		t.Error("Expected error for unknown format")
	}
}
