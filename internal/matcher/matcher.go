// Package matcher implements the metadata containment predicate shared by
// every store dialect (spec.md §4.1). Postgres evaluates an equivalent
// predicate natively via the jsonb "@>" operator; SQLite has no portable
// native containment operator reachable through database/sql, so its store
// fetches index-friendly candidates and calls Matches in application code.
// Both paths must agree for identical inputs (spec.md §8, dialect
// equivalence).
package matcher

// Matches reports whether stored satisfies the containment predicate
// described by filter:
//   - scalar == scalar
//   - list_filter ⊆ list_stored
//   - dict_filter keys all present in dict_stored and values match recursively
//   - any other type pairing is a non-match
func Matches(filter map[string]any, stored map[string]any) bool {
	for key, want := range filter {
		got, ok := stored[key]
		if !ok {
			return false
		}
		if !valueMatches(want, got) {
			return false
		}
	}
	return true
}

func valueMatches(want, got any) bool {
	if w, ok := want.(map[string]any); ok {
		g, ok := got.(map[string]any)
		if !ok {
			return false
		}
		return Matches(w, g)
	}
	// Normalize want the same way toAnySlice normalizes got: a caller-built
	// filter naturally uses []string (e.g. for "entities"), not just the
	// []any shape JSON-decoded filters arrive in.
	if wantList, ok := toAnySlice(want); ok {
		return listMatches(wantList, got)
	}
	return scalarEqual(want, got)
}

// listMatches reports whether every element of want appears in got (as a
// list) — list_filter ⊆ list_stored.
func listMatches(want []any, got any) bool {
	list, ok := toAnySlice(got)
	if !ok {
		return false
	}
	for _, w := range want {
		found := false
		for _, g := range list {
			if scalarEqual(w, g) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func toAnySlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// scalarEqual compares two decoded-JSON scalars for equality, tolerating the
// int/float64 split that JSON decoding introduces.
func scalarEqual(a, b any) bool {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
