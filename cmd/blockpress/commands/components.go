package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/livetemplate/blockpress"
	"github.com/livetemplate/blockpress/internal/registry"
	"github.com/livetemplate/blockpress/internal/watch"
)

var (
	componentsFormat   string
	componentsOrigin   string
	componentsCategory string
)

var componentsCmd = &cobra.Command{
	Use:     "components",
	Aliases: []string{"component", "comp"},
	Short:   "Manage the component registry",
	Long: `List, check, add and remove components.

Component files are either .js source whose file name is the key, or
.yaml files with key, name, schema, default_config and code fields.`,
}

var componentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered components",
	Example: `  blockpress components list
  blockpress components list --origin custom --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			defs := a.srv.Registry().List(registry.Filter{
				Origin:   registry.Origin(componentsOrigin),
				Category: componentsCategory,
			})
			data := make(rows, 0, len(defs))
			for _, d := range defs {
				data = append(data, map[string]any{
					"key":         d.Key,
					"name":        d.Name,
					"origin":      string(d.Origin),
					"category":    d.Category,
					"description": d.Description,
				})
			}
			return writeRows(cmd.OutOrStdout(), componentsFormat, data)
		})
	},
}

var componentsCheckCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Compile component files without registering them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			failed := 0
			for _, path := range args {
				src, err := watch.ReadFile(path)
				if err == nil {
					err = a.srv.Compiler().Check(src.Code)
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "FAIL %s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok   %s (%s)\n", path, src.Key)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d component file(s) failed to compile", failed, len(args))
			}
			return nil
		})
	},
}

var componentsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Register or replace a custom component from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := watch.ReadFile(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			def, err := a.srv.Registry().PutCustom(src)
			if err != nil {
				return err
			}
			if err := a.store.SaveComponent(ctx, def.Source()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved component %s\n", def.Key)
			return nil
		})
	},
}

var componentsRemoveCmd = &cobra.Command{
	Use:     "remove <key>",
	Aliases: []string{"rm"},
	Short:   "Remove a stored custom component",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if def, ok := a.srv.Registry().Lookup(key); ok && def.Origin != registry.OriginCustom {
				return blockpress.Errorf(blockpress.CodeInvalidInput, "cli.remove", "component %q is %s and cannot be removed", key, def.Origin)
			}
			if err := a.store.DeleteComponent(ctx, key); err != nil {
				if errors.Is(err, blockpress.ErrNotFound) {
					return blockpress.Errorf(blockpress.CodeNotFound, "cli.remove", "component %q is not stored", key)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed component %s\n", key)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(componentsCmd)
	componentsCmd.AddCommand(componentsListCmd, componentsCheckCmd, componentsAddCmd, componentsRemoveCmd)

	componentsListCmd.Flags().StringVarP(&componentsFormat, "format", "f", "table", "output format: table, json or csv")
	componentsListCmd.Flags().StringVar(&componentsOrigin, "origin", "", "filter by origin: builtin, seed or custom")
	componentsListCmd.Flags().StringVar(&componentsCategory, "category", "", "filter by category")
}
