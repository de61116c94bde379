package rules

// ApplyKeyMigrations rewrites a raw field-value record according to plan.
// rename moves a single key; merge unifies several source keys into one,
// preferring non-empty operands and unioning lists; split copies one
// source key's value out to several destination keys; deprecate moves a
// key under "_deprecated" instead of deleting it outright. The function is
// idempotent: applying the same plan twice yields the same record.
func ApplyKeyMigrations(record map[string]any, plan MigrationPlan) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = v
	}

	for _, op := range plan.Ops {
		switch op.Op {
		case "rename":
			if len(op.From) != 1 || op.To == "" {
				continue
			}
			from := op.From[0]
			if v, ok := out[from]; ok {
				if _, already := out[op.To]; !already {
					out[op.To] = v
				}
				delete(out, from)
			}
		case "merge":
			if op.To == "" {
				continue
			}
			merged := mergeValues(out, op.From)
			if merged != nil {
				out[op.To] = merged
			}
			for _, from := range op.From {
				if from != op.To {
					delete(out, from)
				}
			}
		case "split":
			if len(op.From) != 1 {
				continue
			}
			v, ok := out[op.From[0]]
			if !ok {
				continue
			}
			for _, dest := range op.Split {
				if _, already := out[dest]; !already {
					out[dest] = v
				}
			}
			delete(out, op.From[0])
		case "deprecate":
			dep, _ := out["_deprecated"].(map[string]any)
			if dep == nil {
				dep = map[string]any{}
			}
			for _, from := range op.From {
				if v, ok := out[from]; ok {
					if _, already := dep[from]; !already {
						dep[from] = v
					}
					delete(out, from)
				}
			}
			out["_deprecated"] = dep
		}
	}
	return out
}

// mergeValues unifies several source keys' values into one: non-empty
// scalar operands win over empty ones, and list operands are unioned
// (order-preserving, de-duplicated).
func mergeValues(record map[string]any, from []string) any {
	var lists [][]any
	var scalar any
	for _, key := range from {
		v, ok := record[key]
		if !ok {
			continue
		}
		if list, ok := v.([]any); ok {
			lists = append(lists, list)
			continue
		}
		if isEmptyScalar(v) {
			continue
		}
		if scalar == nil {
			scalar = v
		}
	}
	if len(lists) > 0 {
		return unionLists(lists)
	}
	return scalar
}

func isEmptyScalar(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

func unionLists(lists [][]any) []any {
	seen := map[any]bool{}
	var out []any
	for _, list := range lists {
		for _, item := range list {
			if !seen[item] {
				seen[item] = true
				out = append(out, item)
			}
		}
	}
	return out
}
