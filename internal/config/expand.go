package config

import (
	"fmt"
	"regexp"
	"strings"
)

// varTokenPattern matches a %NAME% variable reference, the percent-
// delimited placeholder convention this loader uses for whole-string
// substitution (spec §4.3 pass 1).
var varTokenPattern = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// expandVariables performs spec §4.3 pass 1: resolve the top-level `vars`
// map (a name -> scalar-or-list-of-scalars map), substitute every %NAME%
// token across the document's string keys and values, and fan out the
// nearest enclosing map/list entry once per value when a variable is
// list-valued (spec: "this is the mechanism for per-instrument fan-out of
// definitions"). Variable definitions may reference earlier variables;
// cycles are rejected.
func expandVariables(doc map[string]any) (map[string]any, error) {
	rawVars, _ := doc["vars"].(map[string]any)
	scalars, lists, err := resolveVars(rawVars)
	if err != nil {
		return nil, err
	}
	if len(lists) > 0 {
		length := -1
		for name, vals := range lists {
			if length == -1 {
				length = len(vals)
			} else if len(vals) != length {
				return nil, fmt.Errorf("vars: list variable %q has length %d, expected %d to match other list variables", name, len(vals), length)
			}
		}
	}

	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "vars" {
			continue
		}
		out[k] = expandNode(v, scalars, lists, nil)
	}
	return out, nil
}

// resolveVars resolves the vars map into scalar and list-valued entries,
// substituting earlier-defined variables into later ones in insertion-map
// order and detecting cycles. Go map iteration order is not insertion
// order, so resolution iterates to a fixed point instead (bounded passes);
// a variable that never stabilizes indicates a cycle.
func resolveVars(raw map[string]any) (scalars map[string]string, lists map[string][]string, err error) {
	scalars = make(map[string]string)
	lists = make(map[string][]string)
	if raw == nil {
		return scalars, lists, nil
	}

	pending := make(map[string]any, len(raw))
	for k, v := range raw {
		pending[k] = v
	}

	const maxPasses = 64
	for pass := 0; len(pending) > 0; pass++ {
		if pass >= maxPasses {
			names := make([]string, 0, len(pending))
			for k := range pending {
				names = append(names, k)
			}
			return nil, nil, fmt.Errorf("vars: cycle detected among %v", names)
		}
		progress := false
		for name, v := range pending {
			switch val := v.(type) {
			case string:
				resolved, ok := trySubstitute(val, scalars)
				if !ok {
					continue
				}
				scalars[name] = resolved
				delete(pending, name)
				progress = true
			case []any:
				resolvedList := make([]string, len(val))
				allOK := true
				for i, item := range val {
					s := fmt.Sprintf("%v", item)
					resolved, ok := trySubstitute(s, scalars)
					if !ok {
						allOK = false
						break
					}
					resolvedList[i] = resolved
				}
				if !allOK {
					continue
				}
				lists[name] = resolvedList
				delete(pending, name)
				progress = true
			default:
				scalars[name] = fmt.Sprintf("%v", val)
				delete(pending, name)
				progress = true
			}
		}
		if !progress && len(pending) > 0 {
			names := make([]string, 0, len(pending))
			for k := range pending {
				names = append(names, k)
			}
			return nil, nil, fmt.Errorf("vars: cycle detected among %v", names)
		}
	}
	return scalars, lists, nil
}

// trySubstitute substitutes every %NAME% token in s using scalars. It
// returns ok=false if s references a name not yet present in scalars
// (meaning that dependency hasn't resolved yet in this pass).
func trySubstitute(s string, scalars map[string]string) (string, bool) {
	ok := true
	result := varTokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		name := varTokenPattern.FindStringSubmatch(tok)[1]
		if v, found := scalars[name]; found {
			return v
		}
		ok = false
		return tok
	})
	return result, ok
}

// referencesListVar reports whether node's string leaves (keys and
// values) contain a token for any of the given list variable names.
func referencesListVar(node any, lists map[string][]string) bool {
	if len(lists) == 0 {
		return false
	}
	switch v := node.(type) {
	case string:
		for _, m := range varTokenPattern.FindAllStringSubmatch(v, -1) {
			if _, ok := lists[m[1]]; ok {
				return true
			}
		}
	case map[string]any:
		for k, val := range v {
			if referencesListVar(k, lists) || referencesListVar(val, lists) {
				return true
			}
		}
	case []any:
		for _, item := range v {
			if referencesListVar(item, lists) {
				return true
			}
		}
	}
	return false
}

// expandNode substitutes scalars into node. pin, when non-nil, pins every
// list variable to lists[name][*pin] — used once a fan-out index has been
// chosen for the enclosing entry. When pin is nil, a map/list entry that
// references a list variable triggers fan-out at this level: one copy of
// the entry per list index, independently for each entry in the
// map/list, recursing into the copy with that index pinned.
func expandNode(node any, scalars map[string]string, lists map[string][]string, pin *int) any {
	switch v := node.(type) {
	case string:
		return substituteScalarString(v, scalars, lists, pin)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if pin == nil && (referencesListVar(k, lists) || referencesListVar(val, lists)) {
				length := lengthOfAnyList(lists)
				for i := 0; i < length; i++ {
					idx := i
					newKey := substituteScalarString(k, scalars, lists, &idx)
					out[newKey] = expandNode(val, scalars, lists, &idx)
				}
				continue
			}
			newKey := substituteScalarString(k, scalars, lists, pin)
			out[newKey] = expandNode(val, scalars, lists, pin)
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if pin == nil && referencesListVar(item, lists) {
				length := lengthOfAnyList(lists)
				for i := 0; i < length; i++ {
					idx := i
					out = append(out, expandNode(item, scalars, lists, &idx))
				}
				continue
			}
			out = append(out, expandNode(item, scalars, lists, pin))
		}
		return out
	default:
		return v
	}
}

func lengthOfAnyList(lists map[string][]string) int {
	for _, vals := range lists {
		return len(vals)
	}
	return 0
}

func substituteScalarString(s string, scalars map[string]string, lists map[string][]string, pin *int) string {
	return varTokenPattern.ReplaceAllStringFunc(s, func(tok string) string {
		name := varTokenPattern.FindStringSubmatch(tok)[1]
		if v, ok := scalars[name]; ok {
			return v
		}
		if vals, ok := lists[name]; ok {
			if pin != nil && *pin < len(vals) {
				return vals[*pin]
			}
			return vals[0]
		}
		return tok
	})
}

// expandTemplates performs spec §4.3 pass 2: any string value that
// exactly matches a `templates` map key is replaced by a deep copy of
// that template's expansion; template bodies may themselves contain
// template-key strings (recursion permitted), capped at depth 32, with
// cycle rejection.
func expandTemplates(doc map[string]any) (map[string]any, error) {
	templates, _ := doc["templates"].(map[string]any)
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "templates" {
			continue
		}
		expanded, err := expandTemplateNode(v, templates, nil, 0)
		if err != nil {
			return nil, err
		}
		out[k] = expanded
	}
	return out, nil
}

const maxTemplateDepth = 32

func expandTemplateNode(node any, templates map[string]any, chain []string, depth int) (any, error) {
	if depth > maxTemplateDepth {
		return nil, fmt.Errorf("templates: recursion exceeds max depth %d (chain: %s)", maxTemplateDepth, strings.Join(chain, " -> "))
	}
	switch v := node.(type) {
	case string:
		frag, ok := templates[v]
		if !ok {
			return v, nil
		}
		for _, seen := range chain {
			if seen == v {
				return nil, fmt.Errorf("templates: cycle detected: %s -> %s", strings.Join(chain, " -> "), v)
			}
		}
		return expandTemplateNode(frag, templates, append(chain, v), depth+1)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			expanded, err := expandTemplateNode(val, templates, chain, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			expanded, err := expandTemplateNode(item, templates, chain, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}
