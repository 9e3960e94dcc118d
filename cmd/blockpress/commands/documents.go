package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/lifecycle"
	"github.com/livetemplate/blockpress/internal/render"
	"github.com/livetemplate/blockpress/internal/store"
	"github.com/livetemplate/blockpress/internal/tree"
)

var (
	docsFormat  string
	docsQuery   string
	docsLimit   int
	docsSlug    string
	renderMode  string
	renderVer   int
	renderOut   string
	importTitle bool
)

var docsCmd = &cobra.Command{
	Use:     "docs",
	Aliases: []string{"documents", "doc"},
	Short:   "Manage documents",
	Long: `Create, import, publish and render documents in the configured store.

Documents are addressed by id or by slug.`,
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Example: `  blockpress docs list
  blockpress docs list --query guide --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			list, err := a.srv.Documents().List(ctx, store.ListOptions{Query: docsQuery, Limit: docsLimit})
			if err != nil {
				return err
			}
			data := make(rows, 0, len(list))
			for _, doc := range list {
				state, err := a.srv.Documents().State(ctx, doc.ID)
				if err != nil {
					return err
				}
				data = append(data, map[string]any{
					"id":      doc.ID,
					"slug":    doc.Slug,
					"title":   doc.Title,
					"state":   string(state),
					"updated": doc.UpdatedAt.Format(time.RFC3339),
				})
			}
			return writeRows(cmd.OutOrStdout(), docsFormat, data)
		})
	},
}

var docsCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create an empty document",
	Example: `  blockpress docs create "Release notes"
  blockpress docs create "Release notes" --slug notes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			doc, err := a.srv.Documents().Create(ctx, lifecycle.CreateInput{Title: args[0], Slug: docsSlug})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", doc.Slug, doc.ID)
			return nil
		})
	},
}

var docsImportCmd = &cobra.Command{
	Use:   "import <doc> <file.md>",
	Short: "Replace a draft with the contents of a markdown file",
	Long: `Convert a markdown file into the document's draft.

Fenced blocks whose info string is "section <key>" become component
sections with YAML props. GFM tables become table sections. With --title
the frontmatter title (or first heading) also replaces the document title.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[1], err)
		}
		imp, err := tree.FromMarkdown(src)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			doc, err := resolveDocument(ctx, a.srv.Documents(), args[0])
			if err != nil {
				return err
			}
			patch := lifecycle.Patch{SetDraft: true, DraftContent: imp.Root}
			if imp.Title != "" && (importTitle || doc.Title == "Untitled") {
				patch.Title = &imp.Title
			}
			doc, err = a.srv.Documents().Patch(ctx, doc.ID, patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d node(s) into %s\n", tree.Size(imp.Root), doc.Slug)
			return nil
		})
	},
}

var docsPublishCmd = &cobra.Command{
	Use:   "publish <doc>",
	Short: "Publish the current draft as a new version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			doc, err := resolveDocument(ctx, a.srv.Documents(), args[0])
			if err != nil {
				return err
			}
			res, err := a.srv.Documents().Publish(ctx, doc.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s version %d\n%s\n", doc.Slug, res.Version, res.URL)
			return nil
		})
	},
}

var docsVersionsCmd = &cobra.Command{
	Use:   "versions <doc>",
	Short: "List the published versions of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			doc, err := resolveDocument(ctx, a.srv.Documents(), args[0])
			if err != nil {
				return err
			}
			versions, err := a.srv.Documents().ListVersions(ctx, doc.ID)
			if err != nil {
				return err
			}
			data := make(rows, 0, len(versions))
			for _, v := range versions {
				data = append(data, map[string]any{
					"version":   v.Version,
					"published": v.CreatedAt.Format(time.RFC3339),
					"url":       a.srv.Documents().PublicURL(doc.Slug, v.Version),
				})
			}
			return writeRows(cmd.OutOrStdout(), docsFormat, data)
		})
	},
}

var docsRenderCmd = &cobra.Command{
	Use:   "render <doc>",
	Short: "Render a draft or published version to HTML",
	Example: `  blockpress docs render welcome
  blockpress docs render welcome --version 2 -o welcome.html
  blockpress docs render welcome --mode editable`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, ok := render.ParseMode(renderMode)
		if !ok {
			return fmt.Errorf("unknown mode %q (use editable or public)", renderMode)
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			doc, err := resolveDocument(ctx, a.srv.Documents(), args[0])
			if err != nil {
				return err
			}
			content := doc.DraftContent
			if renderVer > 0 {
				v, err := a.srv.Documents().GetVersion(ctx, doc.ID, renderVer)
				if err != nil {
					return err
				}
				content = v.Content
			}

			renderer := a.srv.Renderer()
			el, resolutions := renderer.Render(content, render.Context{Mode: mode})
			var html string
			if mode == render.ModePublic {
				html, err = renderer.PublicHTML(el)
			} else {
				html, err = render.HTML(el)
			}
			if err != nil {
				return err
			}
			for _, res := range resolutions {
				if res.Status != render.StatusOK {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: section %s (%s): %s %s\n", res.NodeID, res.ComponentKey, res.Status, res.Message)
				}
			}

			if renderOut == "" || renderOut == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), html)
				return err
			}
			if err := os.WriteFile(renderOut, []byte(html+"\n"), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", renderOut, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", renderOut)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
	docsCmd.AddCommand(docsListCmd, docsCreateCmd, docsImportCmd, docsPublishCmd, docsVersionsCmd, docsRenderCmd)

	docsListCmd.Flags().StringVarP(&docsFormat, "format", "f", "table", "output format: table, json or csv")
	docsListCmd.Flags().StringVarP(&docsQuery, "query", "q", "", "filter by title or slug")
	docsListCmd.Flags().IntVar(&docsLimit, "limit", 0, "maximum number of documents")
	docsVersionsCmd.Flags().StringVarP(&docsFormat, "format", "f", "table", "output format: table, json or csv")
	docsCreateCmd.Flags().StringVar(&docsSlug, "slug", "", "document slug (default: derived from the title)")
	docsImportCmd.Flags().BoolVar(&importTitle, "title", false, "replace the document title with the imported one")
	docsRenderCmd.Flags().StringVarP(&renderMode, "mode", "m", "public", "render mode: public or editable")
	docsRenderCmd.Flags().IntVar(&renderVer, "version", 0, "published version to render (default: the draft)")
	docsRenderCmd.Flags().StringVarP(&renderOut, "output", "o", "", "write HTML to a file instead of stdout")
}

// resolveDocument finds a document by id, then by slug.
func resolveDocument(ctx context.Context, docs *lifecycle.Service, ref string) (*store.Document, error) {
	doc, err := docs.Get(ctx, ref)
	if err == nil {
		return doc, nil
	}
	if blockpress.CodeOf(err) != blockpress.CodeNotFound {
		return nil, err
	}
	doc, err = docs.GetBySlug(ctx, ref)
	if blockpress.CodeOf(err) == blockpress.CodeNotFound {
		return nil, blockpress.Errorf(blockpress.CodeNotFound, "cli.resolve", "no document with id or slug %q", ref)
	}
	return doc, err
}
