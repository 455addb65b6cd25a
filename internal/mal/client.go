// Package mal implements the MyAnimeList watchlist adapter and the
// series-root relation tracer.
package mal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/fetch"
)

// Relation names as reported by the metadata API, normalized to lower case.
const (
	RelParentStory = "parent story"
	RelPrequel     = "prequel"
	RelSequel      = "sequel"
	RelFullStory   = "full story"
)

// Details is the per-anime metadata needed for tracing and publishing.
type Details struct {
	ID       int
	Title    string
	Type     string
	Episodes int
	Year     int
	ImageURL string
}

// Related is one endpoint of a typed relation.
type Related struct {
	ID   int
	Name string
}

// Relations maps a normalized relation name to its targets.
type Relations map[string][]Related

// MetadataAPI is the slice of the anime metadata upstream the tracer needs.
type MetadataAPI interface {
	Details(ctx context.Context, id int) (Details, error)
	Relations(ctx context.Context, id int) (Relations, error)
}

const defaultAPIBaseURL = "https://api.jikan.moe/v4"

// Client fetches anime metadata through the shared rate-limited client.
type Client struct {
	fetcher *fetch.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient builds a Client. An empty baseURL selects the public API.
func NewClient(fetcher *fetch.Client, baseURL string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	return &Client{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type detailsEnvelope struct {
	Data struct {
		MalID    int    `json:"mal_id"`
		Title    string `json:"title"`
		Type     string `json:"type"`
		Episodes int    `json:"episodes"`
		Year     int    `json:"year"`
		Images   struct {
			JPG struct {
				ImageURL string `json:"image_url"`
			} `json:"jpg"`
		} `json:"images"`
	} `json:"data"`
}

type relationsEnvelope struct {
	Data []struct {
		Relation string `json:"relation"`
		Entry    []struct {
			MalID int    `json:"mal_id"`
			Name  string `json:"name"`
		} `json:"entry"`
	} `json:"data"`
}

// Details fetches type, episode count and display metadata for one anime.
func (c *Client) Details(ctx context.Context, id int) (Details, error) {
	resp, err := c.fetcher.Get(ctx, fmt.Sprintf("%s/anime/%d", c.baseURL, id))
	if err != nil {
		return Details{}, fmt.Errorf("anime details %d: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Details{}, fmt.Errorf("anime details %d: status %d", id, resp.StatusCode)
	}
	var env detailsEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return Details{}, fmt.Errorf("anime details %d: decode: %w", id, err)
	}
	return Details{
		ID:       env.Data.MalID,
		Title:    env.Data.Title,
		Type:     env.Data.Type,
		Episodes: env.Data.Episodes,
		Year:     env.Data.Year,
		ImageURL: env.Data.Images.JPG.ImageURL,
	}, nil
}

// Relations fetches the typed relation links for one anime.
func (c *Client) Relations(ctx context.Context, id int) (Relations, error) {
	resp, err := c.fetcher.Get(ctx, fmt.Sprintf("%s/anime/%d/relations", c.baseURL, id))
	if err != nil {
		return nil, fmt.Errorf("anime relations %d: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anime relations %d: status %d", id, resp.StatusCode)
	}
	var env relationsEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, fmt.Errorf("anime relations %d: decode: %w", id, err)
	}
	rels := make(Relations, len(env.Data))
	for _, group := range env.Data {
		name := strings.ToLower(strings.TrimSpace(group.Relation))
		for _, entry := range group.Entry {
			if entry.MalID > 0 {
				rels[name] = append(rels[name], Related{ID: entry.MalID, Name: entry.Name})
			}
		}
	}
	return rels, nil
}
