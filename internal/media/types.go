// Package media defines core types shared across subsystems.
package media

import (
	"fmt"
	"time"
)

// Kind is the downstream category an entry is published under.
type Kind string

// Kind values persisted in the ledger and served by the list endpoints.
const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
)

// Source identifies the upstream a watchlist item came from.
type Source string

// Known watchlist sources.
const (
	SourceLetterboxd Source = "letterboxd"
	SourceMAL        Source = "mal"
)

// Item is the raw per-entry data scraped from a source listing. It lives for
// one scrape pass and is discarded after resolution.
type Item struct {
	NativeID string
	Title    string
	Year     int
	TypeHint string
}

// Entry is the canonical resolved output unit.
type Entry struct {
	TMDBID   int       `json:"tmdb_id,omitempty"`
	TVDBID   int       `json:"tvdb_id,omitempty"`
	Title    string    `json:"title"`
	Year     int       `json:"year,omitempty"`
	Kind     Kind      `json:"kind"`
	Source   Source    `json:"source"`
	Username string    `json:"username"`
	Anime    bool      `json:"anime,omitempty"`
	Episodes int       `json:"episodes,omitempty"`
	ImageURL string    `json:"image_url,omitempty"`
	MALID    int       `json:"mal_id,omitempty"`
	RootID   int       `json:"root_id,omitempty"`
	Slug     string    `json:"slug,omitempty"`
	AddedAt  time.Time `json:"added_at"`
}

// Key returns the unique identity used for deduplication. External database
// ids win; entries without one fall back to the composite key built from
// title, year, source and username.
func (e Entry) Key() string {
	if e.TMDBID > 0 {
		return fmt.Sprintf("tmdb:%d", e.TMDBID)
	}
	if e.TVDBID > 0 {
		return fmt.Sprintf("tvdb:%d", e.TVDBID)
	}
	return fmt.Sprintf("%s|%d|%s|%s", e.Title, e.Year, e.Source, e.Username)
}

// SourceID returns the source-native identifier for ledger indexing.
func (e Entry) SourceID() string {
	if e.MALID > 0 {
		return fmt.Sprintf("mal:%d", e.MALID)
	}
	if e.Slug != "" {
		return fmt.Sprintf("%s:%s", e.Source, e.Slug)
	}
	return ""
}
