package rules

import "strings"

// Context is the read-only object graph for one listing, fully materialized
// by the catalog service before evaluation starts. Related entities (CPU,
// GPU, RAM, storage, ports) hang off it as nested maps.
type Context map[string]any

// Resolve walks a dotted path through the context graph.
// A missing intermediate or terminal field yields (nil, false) rather than
// an error; conditions, actions, and formulas all share these semantics.
func (c Context) Resolve(path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = map[string]any(c)
	for _, seg := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// ResolveNumber resolves a path and coerces it to float64.
// Satisfies formula.Resolver so formulas see exactly the field semantics
// conditions do.
func (c Context) ResolveNumber(path string) (float64, bool) {
	val, ok := c.Resolve(path)
	if !ok {
		return 0, false
	}
	return toNumber(val)
}

// ResolveString resolves a path to a string value
func (c Context) ResolveString(path string) (string, bool) {
	val, ok := c.Resolve(path)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// BasePrice reads the listing's base price from the context
func (c Context) BasePrice() (float64, bool) {
	return c.ResolveNumber("listing.price")
}

// Condition reads the listing's condition label from the context.
// Returns "" when the label is absent.
func (c Context) Condition() ListingCondition {
	s, ok := c.ResolveString("listing.condition")
	if !ok {
		return ""
	}
	return ListingCondition(s)
}

// toNumber coerces the numeric types that survive JSON decoding and catalog
// materialization. Strings never coerce: a string-vs-number comparison is a
// type mismatch, not a parse.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
