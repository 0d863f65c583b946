package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/codeshare/internal/model"
	"github.com/sakif/codeshare/internal/repository"
)

var _ repository.TagRepository = (*TagDB)(nil)

// ListWithCounts returns every tag with the number of snippets linked to it,
// ordered by name. Tags no snippet uses any more still appear with count 0.
func (db *TagDB) ListWithCounts(ctx context.Context) ([]model.TagCount, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT t.name, t.slug, COUNT(st.snippet_id)
		 FROM tags t
		 LEFT JOIN snippet_tags st ON st.tag_id = t.id
		 GROUP BY t.id
		 ORDER BY t.name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tags: %w", err)
	}
	defer rows.Close()

	tags := []model.TagCount{}
	for rows.Next() {
		var tc model.TagCount
		if err := rows.Scan(&tc.Name, &tc.Slug, &tc.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags = append(tags, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return tags, nil
}
