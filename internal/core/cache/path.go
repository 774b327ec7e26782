package cache

import (
	"fmt"
	"strings"
	"sync"
)

// segment is one step of a sanitize path. Each reports whether the step
// fans out over array elements (the `field[]` form).
type segment struct {
	field string
	each  bool
}

// fieldPath is the parsed form of a dot/bracket sanitize path such as
// `customer.email` or `lineItems[].variantId`. A path ending in a `[]`
// segment removes the array field itself.
type fieldPath []segment

// parsedPaths caches parsed sanitize paths so Put does not re-parse the
// same strings per entry.
var (
	parsedMu    sync.RWMutex
	parsedPaths = map[string]fieldPath{}
)

// parsePath parses a dot-addressed, array-index-aware field path.
func parsePath(raw string) (fieldPath, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("sanitize path is empty")
	}

	parsedMu.RLock()
	if cached, ok := parsedPaths[raw]; ok {
		parsedMu.RUnlock()
		return cached, nil
	}
	parsedMu.RUnlock()

	parts := strings.Split(raw, ".")
	path := make(fieldPath, 0, len(parts))
	for _, part := range parts {
		each := strings.HasSuffix(part, "[]")
		field := strings.TrimSuffix(part, "[]")
		if field == "" {
			return nil, fmt.Errorf("invalid sanitize path: %s", raw)
		}
		path = append(path, segment{field: field, each: each})
	}

	parsedMu.Lock()
	parsedPaths[raw] = path
	parsedMu.Unlock()

	return path, nil
}

// parsePaths parses all paths, rejecting the whole set on the first
// invalid entry so a typo never silently leaks a field.
func parsePaths(raw []string) ([]fieldPath, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	paths := make([]fieldPath, 0, len(raw))
	for _, value := range raw {
		path, err := parsePath(value)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// sanitize returns a deep copy of value with every addressed field
// removed. The input tree is never mutated.
func sanitize(value any, paths []fieldPath) any {
	if len(paths) == 0 {
		return deepCopy(value)
	}
	copied := deepCopy(value)
	for _, path := range paths {
		strip(copied, path)
	}
	return copied
}

func strip(node any, path fieldPath) {
	if len(path) == 0 {
		return
	}

	head, rest := path[0], path[1:]

	switch typed := node.(type) {
	case map[string]any:
		if head.each {
			// A trailing `field[]` removes the whole array, so a path
			// that stops at the fan-out step still strips something.
			if len(rest) == 0 {
				delete(typed, head.field)
				return
			}
			items, ok := typed[head.field].([]any)
			if !ok {
				return
			}
			for _, item := range items {
				strip(item, rest)
			}
			return
		}
		if len(rest) == 0 {
			delete(typed, head.field)
			return
		}
		strip(typed[head.field], rest)
	case []any:
		// A bare array at an intermediate step: apply to each element.
		for _, item := range typed {
			strip(item, path)
		}
	}
}

func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return value
	}
}
