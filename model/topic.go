package model

import (
	"database/sql"
	"time"
)

// RawTopic is one row of the board listing page as extracted from markup.
// It carries only the fields the listing exposes; creation time lives on
// the topic page and is resolved separately.
type RawTopic struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Replies int    `json:"replies"`
	Views   int    `json:"views"`
}

// Topic is the persisted state of a forum thread, keyed by its URL.
//
// Lifecycle:
//  1. Inserted on first listing sighting (Created unset, Posted=false)
//  2. Title/Replies/Views/Updated refreshed on every sighting
//  3. Created resolved once from the topic page, never overwritten
//  4. Posted set once after a successful notification, never reset
//
// ClaimExpires is the notification lease (unix seconds) held by the scan
// currently sending a message for this topic.
type Topic struct {
	URL          string        `json:"url" db:"url"`
	Title        string        `json:"title" db:"title"`
	Replies      int           `json:"replies" db:"replies"`
	Views        int           `json:"views" db:"views"`
	Created      sql.NullTime  `json:"created" db:"created"`
	Updated      time.Time     `json:"updated" db:"updated"`
	Posted       bool          `json:"posted" db:"posted"`
	ClaimExpires sql.NullInt64 `json:"claimExpires" db:"claim_expires"`
}

// TableName returns the database table name for Topic.
func (t Topic) TableName() string {
	return TableName
}

// HasCreated reports whether the creation time has been resolved.
func (t *Topic) HasCreated() bool {
	return t.Created.Valid
}

// SetCreated records the creation time unless one is already present.
// Returns false when the topic already had a creation time.
func (t *Topic) SetCreated(created time.Time) bool {
	if t.Created.Valid {
		return false
	}
	t.Created = sql.NullTime{Time: created, Valid: true}
	return true
}
