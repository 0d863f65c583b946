// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data: plain values with struct
// tags describing their JSON shape.
package model

import "time"

// Snippet is the single DTO shape returned by every read path (feed,
// single fetch, profile). The viewer renders it the same way wherever it
// came from.
//
// Description and FileName are pointers because the API distinguishes
// "absent" from "empty": a nil pointer is omitted from the JSON body.
type Snippet struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	Code        string    `json:"code"`
	Language    string    `json:"language"`
	FileName    *string   `json:"fileName,omitempty"`
	Complexity  string    `json:"complexity,omitempty"`
	IsPublic    bool      `json:"isPublic"`
	Views       int64     `json:"views"`
	Slug        string    `json:"slug"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Author      Author    `json:"author"`
	AuthorID    string    `json:"authorId"`
	Tags        []Tag     `json:"tags"`
}

// Author is the joined subset of User exposed on a snippet.
type Author struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Tag is a stored tag. Slug is the natural key.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// TagInput is a normalized tag that may not exist yet.
type TagInput struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// TagCount is one row of the GET /tags listing.
type TagCount struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Count int    `json:"count"`
}

// ListMeta describes one page of a list query.
type ListMeta struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// SnippetPage is the body of GET /snippets.
type SnippetPage struct {
	Items []Snippet `json:"items"`
	Meta  ListMeta  `json:"meta"`
}

// DescriptionText returns the description or "".
func (s *Snippet) DescriptionText() string {
	if s.Description == nil {
		return ""
	}
	return *s.Description
}

// FileNameText returns the file name or "".
func (s *Snippet) FileNameText() string {
	if s.FileName == nil {
		return ""
	}
	return *s.FileName
}
