package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// categoryMeta is the hand-authored _meta.json sitting alongside a
// directory of per-field fragments: the category name and the version
// stamp this compile produces (diff-rules compares consecutive stamps via
// ClassifyVersionChange).
type categoryMeta struct {
	Category string `json:"category"`
	Version  string `json:"version"`
}

// Compile reads a source directory of hand-authored field-rule fragments
// (one JSON file per field, plus a _meta.json and an optional
// migrations.json) and produces the compiled Set served by Load at
// runtime, and the category's MigrationPlan.
//
// Fragment files are named <field>.json and unmarshal directly into a
// FieldRule; the filename's basename (without extension) is used as the
// map key and, when the fragment's own "field" value is empty, as Field
// too — mirroring how the teacher's parser.Registry keys are derived from
// registered format names rather than repeated inside each value.
func Compile(sourceDir string) (*Set, MigrationPlan, error) {
	metaPath := filepath.Join(sourceDir, "_meta.json")
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, MigrationPlan{}, fmt.Errorf("rules: reading %s: %w", metaPath, err)
	}
	var meta categoryMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, MigrationPlan{}, fmt.Errorf("rules: parsing %s: %w", metaPath, err)
	}
	if meta.Category == "" || meta.Version == "" {
		return nil, MigrationPlan{}, fmt.Errorf("rules: %s: category and version are required", metaPath)
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, MigrationPlan{}, fmt.Errorf("rules: reading %s: %w", sourceDir, err)
	}

	fields := map[string]FieldRule{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch name {
		case "_meta.json", "migrations.json":
			continue
		}
		if filepath.Ext(name) != ".json" {
			continue
		}
		field := name[:len(name)-len(filepath.Ext(name))]

		data, err := os.ReadFile(filepath.Join(sourceDir, name))
		if err != nil {
			return nil, MigrationPlan{}, fmt.Errorf("rules: reading %s: %w", name, err)
		}
		var fr FieldRule
		if err := json.Unmarshal(data, &fr); err != nil {
			return nil, MigrationPlan{}, fmt.Errorf("rules: parsing %s: %w", name, err)
		}
		if fr.Field == "" {
			fr.Field = field
		}
		if fr.Version == "" {
			fr.Version = meta.Version
		}
		fields[field] = fr
	}
	if len(fields) == 0 {
		return nil, MigrationPlan{}, fmt.Errorf("rules: %s: no field fragments found", sourceDir)
	}

	set := New(meta.Category, meta.Version, fields)

	var plan MigrationPlan
	plan.Version = meta.Version
	migrationsPath := filepath.Join(sourceDir, "migrations.json")
	if data, err := os.ReadFile(migrationsPath); err == nil {
		if err := json.Unmarshal(data, &plan.Ops); err != nil {
			return nil, MigrationPlan{}, fmt.Errorf("rules: parsing %s: %w", migrationsPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, MigrationPlan{}, fmt.Errorf("rules: reading %s: %w", migrationsPath, err)
	}

	return set, plan, nil
}

// CompileAll runs Compile over every immediate subdirectory of root (one
// subdirectory per category), for compile-rules-all.
func CompileAll(root string) (map[string]*Set, map[string]MigrationPlan, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("rules: reading %s: %w", root, err)
	}

	sets := map[string]*Set{}
	plans := map[string]MigrationPlan{}
	var categories []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		categories = append(categories, e.Name())
	}
	sort.Strings(categories)

	for _, category := range categories {
		set, plan, err := Compile(filepath.Join(root, category))
		if err != nil {
			return nil, nil, fmt.Errorf("rules: category %s: %w", category, err)
		}
		sets[category] = set
		plans[category] = plan
	}
	return sets, plans, nil
}

// WriteCompiled serializes set to <outDir>/field_rules.json and plan to
// <outDir>/key_migrations.json, the pair rules.Load and
// ApplyKeyMigrations read at runtime.
func WriteCompiled(outDir string, set *Set, plan MigrationPlan) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("rules: creating %s: %w", outDir, err)
	}

	rulesData, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("rules: encoding field_rules.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "field_rules.json"), rulesData, 0o644); err != nil {
		return fmt.Errorf("rules: writing field_rules.json: %w", err)
	}

	planData, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("rules: encoding key_migrations.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "key_migrations.json"), planData, 0o644); err != nil {
		return fmt.Errorf("rules: writing key_migrations.json: %w", err)
	}
	return nil
}
