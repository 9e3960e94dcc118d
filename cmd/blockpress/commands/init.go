package commands

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
)

//go:embed all:templates
var templatesFS embed.FS

// validTemplates lists all available template types
var validTemplates = []string{"site", "minimal"}

// templateDescriptions provides help text for each template
var templateDescriptions = map[string]string{
	"site":    "Config, component seed, a watched components directory and a sample document",
	"minimal": "Config file only",
}

var (
	initTemplate string
	initList     bool
)

var initCmd = &cobra.Command{
	Use:   "init <project-name>",
	Short: "Create a new blockpress project from a template",
	Example: `  blockpress init my-site
  blockpress init my-site --template minimal
  blockpress init --list`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if initList {
			printTemplates(out)
			return nil
		}
		if len(args) == 0 {
			return fmt.Errorf("project name required\n\nRun 'blockpress init --help' for more information")
		}
		return createProject(out, args[0], initTemplate)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initTemplate, "template", "t", "site", "template type: "+strings.Join(validTemplates, ", "))
	initCmd.Flags().BoolVar(&initList, "list", false, "list available templates")
}

func printTemplates(w io.Writer) {
	fmt.Fprintln(w, "Available templates:")
	fmt.Fprintln(w)
	for _, t := range validTemplates {
		fmt.Fprintf(w, "  %-10s %s\n", t, templateDescriptions[t])
	}
}

// createProject creates a new project from a template
func createProject(w io.Writer, projectName, templateName string) error {
	if !slices.Contains(validTemplates, templateName) {
		return fmt.Errorf("unknown template: %s\n\nAvailable templates: %s", templateName, strings.Join(validTemplates, ", "))
	}
	if strings.TrimSpace(projectName) == "" {
		return fmt.Errorf("project name cannot be empty")
	}
	if strings.Contains(projectName, " ") {
		return fmt.Errorf("project name cannot contain spaces")
	}
	if _, err := os.Stat(projectName); !os.IsNotExist(err) {
		return fmt.Errorf("directory '%s' already exists", projectName)
	}

	name := filepath.Base(projectName)
	data := map[string]string{
		"Title":        toTitle(name),
		"ProjectName":  name,
		"TemplateName": templateName,
	}

	templateDir := "templates/" + templateName
	var files []string
	err := fs.WalkDir(templatesFS, templateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read template directory: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("template '%s' has no files", templateName)
	}

	if err := os.MkdirAll(projectName, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	for _, templatePath := range files {
		if err := processTemplateFile(projectName, templateDir, templatePath, data); err != nil {
			os.RemoveAll(projectName)
			return err
		}
	}

	printSuccessMessage(w, projectName, templateName)
	return nil
}

// processTemplateFile reads a template file and writes it to the project directory
func processTemplateFile(projectName, templateDir, templatePath string, data map[string]string) error {
	content, err := templatesFS.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", templatePath, err)
	}

	relativePath := strings.TrimPrefix(templatePath, templateDir+"/")
	outputPath := filepath.Join(projectName, filepath.FromSlash(relativePath))
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(outputPath), err)
	}

	// [[.Var]] keeps scaffolding variables apart from component source.
	tmpl, err := template.New(filepath.Base(templatePath)).Delims("[[", "]]").Parse(string(content))
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", templatePath, err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", outputPath, err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write template %s: %w", templatePath, err)
	}
	return nil
}

// toTitle converts a project name like "my-site" to "My Site"
func toTitle(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_'
	})
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func printSuccessMessage(w io.Writer, projectName, templateName string) {
	fmt.Fprintf(w, "Created %s from the %s template\n\n", projectName, templateName)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  cd %s\n", projectName)
	if templateName == "site" {
		fmt.Fprintln(w, "  blockpress docs create Welcome")
		fmt.Fprintln(w, "  blockpress docs import welcome docs/welcome.md")
		fmt.Fprintln(w, "  blockpress docs publish welcome")
		fmt.Fprintln(w, "  blockpress serve --watch")
		return
	}
	fmt.Fprintln(w, "  blockpress serve")
}
