package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/codeshare/internal/apperror"
	"github.com/sakif/codeshare/internal/model"
	"github.com/sakif/codeshare/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` fails the build if *SnippetDB ever stops satisfying the
// interface, instead of failing later at the call site that wires it up.
var _ repository.SnippetRepository = (*SnippetDB)(nil)

// snippetColumns is the projection every read path shares, so feed, single
// fetch and profile all scan into the same model.Snippet shape.
const snippetColumns = `
	s.id, s.title, s.description, s.code, s.language, s.file_name,
	s.complexity, s.is_public, s.views, s.slug, s.author_id,
	s.created_at, s.updated_at,
	u.id, u.name, u.username, u.avatar_url`

const snippetFrom = `FROM snippets s JOIN users u ON u.id = s.author_id`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnippet(r rowScanner) (model.Snippet, error) {
	var (
		s           model.Snippet
		description sql.NullString
		fileName    sql.NullString
	)
	err := r.Scan(
		&s.ID, &s.Title, &description, &s.Code, &s.Language, &fileName,
		&s.Complexity, &s.IsPublic, &s.Views, &s.Slug, &s.AuthorID,
		&s.CreatedAt, &s.UpdatedAt,
		&s.Author.ID, &s.Author.Name, &s.Author.Username, &s.Author.AvatarURL,
	)
	if err != nil {
		return s, err
	}
	if description.Valid {
		s.Description = &description.String
	}
	if fileName.Valid {
		s.FileName = &fileName.String
	}
	s.Tags = []model.Tag{}
	return s, nil
}

// Create inserts a new snippet and links its tags.
//
// KEY CONCEPTS:
//
//  1. ONE TRANSACTION:
//     The snippet row, any new tag rows and the snippet_tags links either all
//     land or none do. A reader never sees a snippet whose tags are missing.
//
//  2. GET-OR-CREATE BY SLUG:
//     Tags are keyed by slug. "Go" and "go" share the row created first.
//
//  3. POINTER RECEIVER (*model.Snippet):
//     After Create(), the caller's snippet carries the generated ID,
//     timestamps and the stored tags.
func (db *SnippetDB) Create(ctx context.Context, snippet *model.Snippet, tags []model.TagInput) error {
	snippet.ID = xid.New().String()

	// UTC keeps the stored text sortable with ORDER BY created_at.
	now := time.Now().UTC()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snippets (id, title, description, code, language, file_name,
			                       complexity, is_public, views, slug, author_id,
			                       created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
			snippet.ID,
			snippet.Title,
			snippet.Description,
			snippet.Code,
			snippet.Language,
			snippet.FileName,
			snippet.Complexity,
			snippet.IsPublic,
			snippet.Slug,
			snippet.AuthorID,
			snippet.CreatedAt,
			snippet.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("snippet", "slug "+snippet.Slug)
			}
			return fmt.Errorf("sqlite: creating snippet: %w", err)
		}

		linked, err := linkTags(ctx, tx, snippet.ID, tags)
		if err != nil {
			return err
		}
		snippet.Tags = linked
		return nil
	})
	if err != nil {
		return err
	}

	snippet.Views = 0
	return nil
}

// linkTags gets or creates each tag by slug and links it to the snippet.
// INSERT OR IGNORE makes a second input resolving to an already-linked slug
// a no-op instead of a primary key violation.
func linkTags(ctx context.Context, tx *sql.Tx, snippetID string, tags []model.TagInput) ([]model.Tag, error) {
	linked := make([]model.Tag, 0, len(tags))
	seen := make(map[string]bool, len(tags))

	for _, in := range tags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tags (id, name, slug) VALUES (?, ?, ?)
			 ON CONFLICT(slug) DO NOTHING`,
			xid.New().String(), in.Name, in.Slug,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: upserting tag %q: %w", in.Slug, err)
		}

		var tag model.Tag
		err = tx.QueryRowContext(ctx,
			`SELECT id, name, slug FROM tags WHERE slug = ?`, in.Slug,
		).Scan(&tag.ID, &tag.Name, &tag.Slug)
		if err != nil {
			return nil, fmt.Errorf("sqlite: reading tag %q: %w", in.Slug, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO snippet_tags (snippet_id, tag_id) VALUES (?, ?)`,
			snippetID, tag.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: linking tag %q: %w", in.Slug, err)
		}

		if !seen[tag.ID] {
			seen[tag.ID] = true
			linked = append(linked, tag)
		}
	}

	return linked, nil
}

// GetByID retrieves a single snippet with its author and tags.
//
// sql.ErrNoRows is translated to apperror.NotFound so the handler can
// answer 404 without knowing anything about SQL.
func (db *SnippetDB) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` `+snippetFrom+` WHERE s.id = ?`,
		id,
	)
	s, err := scanSnippet(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}

	items := []model.Snippet{s}
	if err := db.attachTags(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// AuthorOf returns the author id without loading the row.
func (db *SnippetDB) AuthorOf(ctx context.Context, id string) (string, error) {
	var authorID string
	err := db.conn.QueryRowContext(ctx,
		`SELECT author_id FROM snippets WHERE id = ?`, id,
	).Scan(&authorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", apperror.NotFound("snippet", id)
		}
		return "", fmt.Errorf("sqlite: getting author of snippet %s: %w", id, err)
	}
	return authorID, nil
}

// List returns one page of public snippets matching the filter and the total
// number of matches.
//
// KEY CONCEPTS:
//
//  1. ONE WHERE CLAUSE, TWO QUERIES:
//     The same conditions drive COUNT(*) and the page query, so Total always
//     agrees with what paging through would return.
//
//  2. STABLE ORDER:
//     created_at DESC alone ties for rows inserted in the same instant;
//     rowid DESC breaks the tie so pages never overlap.
//
//  3. LIKE ESCAPING:
//     The search text is user input; % and _ are escaped so "50%" matches
//     literally.
func (db *SnippetDB) List(ctx context.Context, filter repository.ListFilter) ([]model.Snippet, int, error) {
	where := []string{"s.is_public = 1"}
	var args []any

	if filter.Language != "" {
		where = append(where, "s.language = ?")
		args = append(args, filter.Language)
	}
	if filter.AuthorID != "" {
		where = append(where, "s.author_id = ?")
		args = append(args, filter.AuthorID)
	}
	if filter.TagSlug != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM snippet_tags st JOIN tags t ON t.id = st.tag_id
			WHERE st.snippet_id = s.id AND t.slug = ?)`)
		args = append(args, filter.TagSlug)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		where = append(where, `(fold(s.title) LIKE ? ESCAPE '\'
			OR fold(coalesce(s.description, '')) LIKE ? ESCAPE '\'
			OR fold(s.code) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}

	whereSQL := " WHERE " + strings.Join(where, " AND ")

	var total int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snippets s`+whereSQL, args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting snippets: %w", err)
	}

	pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+` `+snippetFrom+whereSQL+`
		 ORDER BY s.created_at DESC, s.rowid DESC
		 LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	defer rows.Close()

	items, err := collectSnippets(rows, filter.Limit)
	if err != nil {
		return nil, 0, err
	}
	if err := db.attachTags(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListByAuthor returns all of an author's snippets, newest first, private
// ones included. Callers decide what the viewer may see.
func (db *SnippetDB) ListByAuthor(ctx context.Context, authorID string) ([]model.Snippet, error) {
	query := `SELECT ` + snippetColumns + ` ` + snippetFrom + `
		WHERE s.author_id = ?
		ORDER BY s.created_at DESC, s.rowid DESC`

	rows, err := db.conn.QueryContext(ctx, query, authorID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets by author %s: %w", authorID, err)
	}
	defer rows.Close()

	items, err := collectSnippets(rows, 0)
	if err != nil {
		return nil, err
	}
	if err := db.attachTags(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func collectSnippets(rows *sql.Rows, capacity int) ([]model.Snippet, error) {
	items := make([]model.Snippet, 0, capacity)
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}
	return items, nil
}

// attachTags loads tags for all items in a single query and fills in
// each snippet's Tags, ordered by tag name.
func (db *SnippetDB) attachTags(ctx context.Context, items []model.Snippet) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]any, len(items))
	index := make(map[string]int, len(items))
	for i := range items {
		ids[i] = items[i].ID
		index[items[i].ID] = i
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT st.snippet_id, t.id, t.name, t.slug
		 FROM snippet_tags st JOIN tags t ON t.id = st.tag_id
		 WHERE st.snippet_id IN (`+placeholders(len(ids))+`)
		 ORDER BY t.name ASC`,
		ids...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snippetID string
		var tag model.Tag
		if err := rows.Scan(&snippetID, &tag.ID, &tag.Name, &tag.Slug); err != nil {
			return fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		if i, ok := index[snippetID]; ok {
			items[i].Tags = append(items[i].Tags, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return nil
}

// Update applies a partial update.
//
// KEY CONCEPTS:
//
//  1. DYNAMIC SET CLAUSE:
//     Only fields present in the update appear in SET. Column names come
//     from this function, never from input, so building the clause is safe;
//     values still go through ? placeholders.
//
//  2. TAG REPLACEMENT IN THE SAME TRANSACTION:
//     Deleting the old links and inserting the new ones happens inside the
//     transaction that updates the row. A concurrent reader sees either the
//     old tags or the new tags, never none.
//
//  3. RowsAffected == 0 means the id does not exist.
func (db *SnippetDB) Update(ctx context.Context, id string, update repository.SnippetUpdate) (*model.Snippet, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if update.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *update.Title)
	}
	if update.ClearDescription {
		sets = append(sets, "description = NULL")
	} else if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Code != nil {
		sets = append(sets, "code = ?")
		args = append(args, *update.Code)
	}
	if update.Complexity != nil {
		sets = append(sets, "complexity = ?")
		args = append(args, *update.Complexity)
	}
	if update.Language != nil {
		sets = append(sets, "language = ?")
		args = append(args, *update.Language)
	}
	if update.ClearFileName {
		sets = append(sets, "file_name = NULL")
	} else if update.FileName != nil {
		sets = append(sets, "file_name = ?")
		args = append(args, *update.FileName)
	}
	if update.IsPublic != nil {
		sets = append(sets, "is_public = ?")
		args = append(args, *update.IsPublic)
	}
	args = append(args, id)

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE snippets SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating snippet %s: %w", id, err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperror.NotFound("snippet", id)
		}

		if update.Tags == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM snippet_tags WHERE snippet_id = ?`, id,
		); err != nil {
			return fmt.Errorf("sqlite: clearing tags of snippet %s: %w", id, err)
		}
		_, err = linkTags(ctx, tx, id, update.Tags)
		return err
	})
	if err != nil {
		return nil, err
	}

	return db.GetByID(ctx, id)
}

// Delete removes a snippet. ON DELETE CASCADE drops its tag links; the tags
// themselves stay for other snippets.
func (db *SnippetDB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM snippets WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("snippet", id)
	}

	return nil
}

// IncrementViews bumps the view counter atomically in SQL.
func (db *SnippetDB) IncrementViews(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets SET views = views + 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing views of %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

// ListPublicIDs feeds the sitemap.
func (db *SnippetDB) ListPublicIDs(ctx context.Context) ([]repository.SitemapEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, author_id, updated_at FROM snippets
		 WHERE is_public = 1
		 ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing public ids: %w", err)
	}
	defer rows.Close()

	var entries []repository.SitemapEntry
	for rows.Next() {
		var e repository.SitemapEntry
		if err := rows.Scan(&e.ID, &e.AuthorID, &e.Updated); err != nil {
			return nil, fmt.Errorf("sqlite: scanning sitemap row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating sitemap rows: %w", err)
	}
	return entries, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
