package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	t.Run("Simple", func(t *testing.T) {
		path, err := parsePath("email")
		require.NoError(t, err)
		require.Equal(t, fieldPath{{field: "email"}}, path)
	})

	t.Run("Nested", func(t *testing.T) {
		path, err := parsePath("customer.email")
		require.NoError(t, err)
		require.Equal(t, fieldPath{{field: "customer"}, {field: "email"}}, path)
	})

	t.Run("ArrayAware", func(t *testing.T) {
		path, err := parsePath("lineItems[].variantId")
		require.NoError(t, err)
		require.Equal(t, fieldPath{{field: "lineItems", each: true}, {field: "variantId"}}, path)
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, raw := range []string{"", "  ", "a..b", "[].x", "a.[]"} {
			_, err := parsePath(raw)
			require.Error(t, err, raw)
		}
	})
}

func TestParsePathReusesParsedForm(t *testing.T) {
	first, err := parsePath("customer.defaultAddress.phone")
	require.NoError(t, err)

	parsedMu.RLock()
	cached, ok := parsedPaths["customer.defaultAddress.phone"]
	parsedMu.RUnlock()
	require.True(t, ok)
	require.Equal(t, first, cached)
}

func TestSanitizeLeavesMissingFieldsAlone(t *testing.T) {
	paths, err := parsePaths([]string{"customer.email", "missing.path"})
	require.NoError(t, err)

	value := map[string]any{"customer": map[string]any{"email": "a@b.com", "id": "1"}}
	got := sanitize(value, paths).(map[string]any)

	require.NotContains(t, got["customer"].(map[string]any), "email")
	require.Contains(t, got["customer"].(map[string]any), "id")
}

func TestSanitizeAppliesToArraysOfObjects(t *testing.T) {
	paths, err := parsePaths([]string{"orders[].customer.email"})
	require.NoError(t, err)

	value := map[string]any{
		"orders": []any{
			map[string]any{"customer": map[string]any{"email": "a@b.com"}},
			map[string]any{"customer": map[string]any{"email": "c@d.com", "name": "C"}},
		},
	}
	got := sanitize(value, paths).(map[string]any)

	for _, order := range got["orders"].([]any) {
		customer := order.(map[string]any)["customer"].(map[string]any)
		require.NotContains(t, customer, "email")
	}
	require.Equal(t, "C", got["orders"].([]any)[1].(map[string]any)["customer"].(map[string]any)["name"])
}

func TestSanitizeTrailingArraySegmentRemovesField(t *testing.T) {
	paths, err := parsePaths([]string{"lineItems[]"})
	require.NoError(t, err)

	value := map[string]any{
		"lineItems": []any{map[string]any{"variantId": "v1"}},
		"name":      "order",
	}
	got := sanitize(value, paths).(map[string]any)

	require.NotContains(t, got, "lineItems")
	require.Equal(t, "order", got["name"])
	require.Contains(t, value, "lineItems")
}
