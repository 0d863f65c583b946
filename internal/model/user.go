package model

import "time"

// User represents a registered account.
//
// Accounts are created either by username/password registration or by the
// optional GitHub login. PasswordHash is empty for GitHub-only accounts and
// GitHubID is zero for password accounts; neither is ever serialized.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	GitHubID     int64     `json:"-"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AsAuthor projects the user onto the author fields joined into snippets.
func (u *User) AsAuthor() Author {
	return Author{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
	}
}

// ProfileStats are the KPI counters shown on a profile page.
type ProfileStats struct {
	Total   int   `json:"total"`
	Public  int   `json:"public"`
	Private int   `json:"private"`
	Views   int64 `json:"views"`
}

// LanguageCount is one bar of the "top languages" chart.
type LanguageCount struct {
	Language string `json:"language"`
	Count    int    `json:"count"`
}

// Profile is a user together with the snippets the viewer may see.
// Stats and Languages always cover every snippet the user owns.
type Profile struct {
	User      User            `json:"user"`
	Stats     ProfileStats    `json:"stats"`
	Languages []LanguageCount `json:"languages"`
	Snippets  []Snippet       `json:"snippets"`
	IsOwner   bool            `json:"isOwner"`
}
