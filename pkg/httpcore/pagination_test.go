package httpcore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskradar/riskradar/pkg/errkind"
)

func TestFetchAllPagesDrainsCursor(t *testing.T) {
	pages := map[string]Page{
		"":   {Items: []any{"a", "b"}, NextCursor: "p2"},
		"p2": {Items: []any{"c"}, NextCursor: "p3"},
		"p3": {Items: []any{"d"}, NextCursor: ""},
	}
	items, err := FetchAllPages(context.Background(), func(_ context.Context, cursor string) (Page, error) {
		return pages[cursor], nil
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c", "d"}, items)
}

func TestFetchAllPagesDetectsCycle(t *testing.T) {
	items, err := FetchAllPages(context.Background(), func(_ context.Context, cursor string) (Page, error) {
		switch cursor {
		case "":
			return Page{Items: []any{1}, NextCursor: "x"}, nil
		case "x":
			return Page{Items: []any{2}, NextCursor: "y"}, nil
		default:
			return Page{Items: []any{3}, NextCursor: "x"}, nil
		}
	})
	require.Error(t, err)
	assert.Equal(t, errkind.ProviderError, errkind.KindOf(err))
	assert.Contains(t, err.Error(), "cycle")
	// Partial results survive the failure.
	assert.Equal(t, []any{1, 2, 3}, items)
}

func TestFetchAllPagesStopsAtPageCap(t *testing.T) {
	n := 0
	items, err := FetchAllPages(context.Background(), func(_ context.Context, cursor string) (Page, error) {
		n++
		return Page{Items: []any{n}, NextCursor: fmt.Sprintf("c%d", n)}, nil
	})
	require.Error(t, err)
	assert.Equal(t, errkind.ProviderError, errkind.KindOf(err))
	assert.Len(t, items, maxPages)
	assert.Equal(t, maxPages, n)
}

func TestFetchAllPagesHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FetchAllPages(ctx, func(_ context.Context, _ string) (Page, error) {
		return Page{}, nil
	})
	require.Error(t, err)
	assert.Equal(t, errkind.Cancelled, errkind.KindOf(err))
}
