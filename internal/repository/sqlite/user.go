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

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, username, name, email, password_hash, github_id,
	avatar_url, bio, created_at, updated_at`

func scanUser(r rowScanner) (*model.User, error) {
	var (
		u        model.User
		email    sql.NullString
		githubID sql.NullInt64
	)
	err := r.Scan(
		&u.ID, &u.Username, &u.Name, &email, &u.PasswordHash, &githubID,
		&u.AvatarURL, &u.Bio, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.GitHubID = githubID.Int64
	return &u, nil
}

// Create inserts a password account. Username and email are UNIQUE; a
// collision comes back as apperror.Conflict naming the column.
func (db *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Name,
		nullableString(user.Email),
		user.PasswordHash,
		nullableGitHubID(user.GitHubID),
		user.AvatarURL,
		user.Bio,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", conflictKey(err))
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}
	return nil
}

// UpsertGitHub inserts or refreshes the account linked to a GitHub ID.
//
// We SELECT first so an existing account keeps its internal ID (snippets
// reference it). On first login the GitHub login becomes the username.
func (db *UserDB) UpsertGitHub(ctx context.Context, user *model.User) error {
	var existingID string
	var createdAt time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE github_id = ?`, user.GitHubID,
	).Scan(&existingID, &createdAt)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", user.GitHubID, err)
	}

	if existingID == "" {
		return db.Create(ctx, user)
	}

	// Existing account: refresh profile fields that may have changed on GitHub.
	user.ID = existingID
	user.CreatedAt = createdAt
	user.UpdatedAt = time.Now().UTC()
	_, err = db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, avatar_url = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		nullableString(user.Email),
		user.AvatarURL,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", conflictKey(err))
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	// Username is owned by the account once chosen; report the stored one.
	return db.conn.QueryRowContext(ctx,
		`SELECT username FROM users WHERE id = ?`, user.ID,
	).Scan(&user.Username)
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByLogin finds a user by username or email, case-insensitively.
func (db *UserDB) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE lower(username) = lower(?) OR lower(email) = lower(?)
		 LIMIT 1`,
		login, login,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", login)
		}
		return nil, fmt.Errorf("sqlite: getting user by login %q: %w", login, err)
	}
	return u, nil
}

func nullableGitHubID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// conflictKey turns "users.email" into "email".
func conflictKey(err error) string {
	col := uniqueColumn(err)
	if i := strings.LastIndex(col, "."); i >= 0 {
		col = col[i+1:]
	}
	if col == "" {
		return "existing account"
	}
	return col
}
