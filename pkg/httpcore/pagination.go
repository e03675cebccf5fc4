package httpcore

import (
	"context"

	"github.com/riskradar/riskradar/pkg/errkind"
)

// maxPages hard-caps cursor pagination regardless of what the upstream
// claims is left.
const maxPages = 100

// Page is one slice of a paginated upstream response: the decoded items plus
// the cursor for the next page ("" means done).
type Page struct {
	Items      []any
	NextCursor string
}

// PageFetcher retrieves one page for the given cursor; the first call
// receives "".
type PageFetcher func(ctx context.Context, cursor string) (Page, error)

// FetchAllPages drains a cursor-paginated endpoint. It stops on an empty
// next cursor, errors on a repeated cursor (upstream loop), and truncates at
// maxPages. Partial results are returned alongside the error so callers can
// degrade instead of discarding what they have.
func FetchAllPages(ctx context.Context, fetch PageFetcher) ([]any, error) {
	var items []any
	seen := map[string]struct{}{"": {}}
	cursor := ""

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return items, errkind.Wrap(errkind.Cancelled, err, "pagination cancelled")
		}
		p, err := fetch(ctx, cursor)
		if err != nil {
			return items, err
		}
		items = append(items, p.Items...)

		if p.NextCursor == "" {
			return items, nil
		}
		if _, dup := seen[p.NextCursor]; dup {
			return items, errkind.New(errkind.ProviderError,
				"pagination cycle detected at cursor %q", p.NextCursor)
		}
		seen[p.NextCursor] = struct{}{}
		cursor = p.NextCursor
	}
	return items, errkind.New(errkind.ProviderError, "pagination exceeded %d pages", maxPages)
}
