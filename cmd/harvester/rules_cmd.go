package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/cdubventures/spec-harvester/rules"
)

// categoriesUnder lists the immediate subdirectory names of root, one per
// category's fragment set.
func categoriesUnder(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// newCompileRulesCmd compiles one category's hand-authored field-rule
// fragments into the field_rules.json/key_migrations.json pair /rules
// loads at runtime.
func newCompileRulesCmd() *cobra.Command {
	var sourceDir, outDir string

	cmd := &cobra.Command{
		Use:   "compile-rules",
		Short: "Compile one category's field-rule fragments into a served rule set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return compileOne(sourceDir, outDir)
		},
	}
	cmd.Flags().StringVar(&sourceDir, "source", "", "directory of hand-authored field-rule fragments (required)")
	cmd.Flags().StringVar(&outDir, "out", "", "output _generated directory (required)")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("out")
	return cmd
}

func compileOne(sourceDir, outDir string) error {
	set, plan, err := rules.Compile(sourceDir)
	if err != nil {
		return withExitCode(1, err)
	}
	if err := rules.WriteCompiled(outDir, set, plan); err != nil {
		return withExitCode(1, err)
	}
	slog.Info("compiled rule set", "category", set.Category, "version", set.Version, "fields", len(set.Fields), "out", outDir)
	return nil
}

// newCompileRulesAllCmd compiles every category subdirectory under root in
// one pass (rules.CompileAll), writing each category's output under
// <out>/<category>/_generated.
func newCompileRulesAllCmd() *cobra.Command {
	var sourceRoot, outRoot string

	cmd := &cobra.Command{
		Use:   "compile-rules-all",
		Short: "Compile every category's field-rule fragments",
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, plans, err := rules.CompileAll(sourceRoot)
			if err != nil {
				return withExitCode(1, err)
			}
			for category, set := range sets {
				outDir := filepath.Join(outRoot, category, "_generated")
				if err := rules.WriteCompiled(outDir, set, plans[category]); err != nil {
					return withExitCode(1, err)
				}
				slog.Info("compiled rule set", "category", category, "version", set.Version, "fields", len(set.Fields))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceRoot, "source", "", "root directory of per-category fragment subdirectories (required)")
	cmd.Flags().StringVar(&outRoot, "out", "", "root output directory (required)")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("out")
	return cmd
}

// newDiffRulesCmd compares two compiled field_rules.json artifacts with
// rules.ClassifyVersionChange and prints the semver bump plus
// added/removed field report.
func newDiffRulesCmd() *cobra.Command {
	var prevPath, nextPath string

	cmd := &cobra.Command{
		Use:   "diff-rules",
		Short: "Compare two compiled rule sets and report the semver bump",
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := rules.Load(prevPath)
			if err != nil {
				return withExitCode(1, err)
			}
			next, err := rules.Load(nextPath)
			if err != nil {
				return withExitCode(1, err)
			}
			change := rules.ClassifyVersionChange(prev, next)
			fmt.Printf("bump=%s added=%v removed=%v\n", change.Bump, change.Added, change.Removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&prevPath, "prev", "", "path to the previous field_rules.json (required)")
	cmd.Flags().StringVar(&nextPath, "next", "", "path to the candidate field_rules.json (required)")
	cmd.MarkFlagRequired("prev")
	cmd.MarkFlagRequired("next")
	return cmd
}

// newWatchCompileCmd watches a source root with fsnotify and recompiles
// the affected category whenever a fragment file changes, for iterating
// on field rules without a manual compile-rules invocation per edit.
func newWatchCompileCmd() *cobra.Command {
	var sourceRoot, outRoot string

	cmd := &cobra.Command{
		Use:   "watch-compile",
		Short: "Watch a field-rule source tree and recompile on change",
		RunE: func(cmd *cobra.Command, args []string) error {
			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return withExitCode(1, fmt.Errorf("starting watcher: %w", err))
			}
			defer watcher.Close()

			categories, err := categoriesUnder(sourceRoot)
			if err != nil {
				return withExitCode(1, err)
			}
			for _, category := range categories {
				if err := watcher.Add(filepath.Join(sourceRoot, category)); err != nil {
					return withExitCode(1, fmt.Errorf("watching %s: %w", category, err))
				}
			}

			slog.Info("watch-compile: watching for changes", "source", sourceRoot, "categories", categories)
			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
						continue
					}
					category := filepath.Base(filepath.Dir(event.Name))
					outDir := filepath.Join(outRoot, category, "_generated")
					if err := compileOne(filepath.Join(sourceRoot, category), outDir); err != nil {
						slog.Error("watch-compile: recompile failed", "category", category, "error", err)
						continue
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					slog.Error("watch-compile: watcher error", "error", err)
				}
			}
		},
	}
	cmd.Flags().StringVar(&sourceRoot, "source", "", "root directory of per-category fragment subdirectories (required)")
	cmd.Flags().StringVar(&outRoot, "out", "", "root output directory (required)")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("out")
	return cmd
}
