package mal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/fetch"
	"github.com/pkaris/listbridge/internal/ledger"
	"github.com/pkaris/listbridge/internal/lookup"
	"github.com/pkaris/listbridge/internal/media"
	"github.com/pkaris/listbridge/internal/metrics"
)

// statusPlanToWatch is the list-status code the adapter filters on.
const statusPlanToWatch = 6

const (
	defaultSiteBaseURL = "https://myanimelist.net"
	pageSize           = 300
)

// Adapter scrapes a user's plan-to-watch list and emits resolved entries.
type Adapter struct {
	site    *fetch.Client
	api     MetadataAPI
	tracer  *Tracer
	ledger  *ledger.Ledger
	table   *lookup.Table
	logger  *zap.Logger
	baseURL string
}

// NewAdapter builds an Adapter. An empty baseURL selects the public site.
func NewAdapter(
	site *fetch.Client,
	api MetadataAPI,
	tracer *Tracer,
	led *ledger.Ledger,
	table *lookup.Table,
	baseURL string,
	logger *zap.Logger,
) *Adapter {
	if baseURL == "" {
		baseURL = defaultSiteBaseURL
	}
	return &Adapter{
		site:    site,
		api:     api,
		tracer:  tracer,
		ledger:  led,
		table:   table,
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Source identifies the adapter for runner bookkeeping.
func (a *Adapter) Source() media.Source {
	return media.SourceMAL
}

type listItem struct {
	Status    int    `json:"status"`
	AnimeID   int    `json:"anime_id"`
	Title     string `json:"anime_title"`
	MediaType string `json:"anime_media_type_string"`
	Episodes  int    `json:"anime_num_episodes"`
	ImagePath string `json:"anime_image_path"`
	StartDate string `json:"anime_start_date_string"`
}

// Scrape walks the user's listing one offset page at a time, resolving and
// publishing each plan-to-watch item strictly in order. Per-item failures
// are logged and skipped; a listing failure aborts only this username.
func (a *Adapter) Scrape(ctx context.Context, username string, sink media.Sink) error {
	offset := 0
	for {
		page, err := a.listPage(ctx, username, offset)
		if err != nil {
			return fmt.Errorf("list %s offset %d: %w", username, offset, err)
		}
		if len(page) == 0 {
			return nil
		}
		for _, item := range page {
			if item.Status != statusPlanToWatch {
				continue
			}
			if err := a.processItem(ctx, username, item, sink); err != nil {
				a.logger.Error("anime item failed",
					zap.String("username", username),
					zap.Int("anime_id", item.AnimeID),
					zap.String("title", item.Title),
					zap.Error(err),
				)
				metrics.ObserveSkip(string(media.SourceMAL), "error")
			}
		}
		offset += len(page)
	}
}

func (a *Adapter) listPage(ctx context.Context, username string, offset int) ([]listItem, error) {
	url := fmt.Sprintf("%s/animelist/%s/load.json?status=%d&offset=%d",
		a.baseURL, username, statusPlanToWatch, offset)
	resp, err := a.site.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var page []listItem
	if err := json.Unmarshal(resp.Body, &page); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return page, nil
}

func (a *Adapter) processItem(ctx context.Context, username string, item listItem, sink media.Sink) error {
	sourceID := fmt.Sprintf("mal:%d", item.AnimeID)
	if a.ledger.HasSourceID(sourceID) {
		metrics.ObserveSkip(string(media.SourceMAL), "seen")
		return nil
	}

	res, err := a.tracer.Trace(ctx, item.AnimeID, item.MediaType)
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}

	if a.ledger.HasRootID(res.RootID) {
		// Series already reported; just retire this item.
		if err := a.ledger.RecordIntermediary(item.AnimeID, res.RootID); err != nil {
			return fmt.Errorf("retire item %d: %w", item.AnimeID, err)
		}
		metrics.ObserveSkip(string(media.SourceMAL), "known_root")
		return nil
	}

	details, err := a.rootDetails(ctx, item, res.RootID)
	if err != nil {
		return fmt.Errorf("root details %d: %w", res.RootID, err)
	}

	entry := a.buildEntry(username, item, res.RootID, details)
	if a.ledger.HasKey(entry.Key()) {
		// The resolved ids collide with an earlier entry; retire the item.
		if err := a.ledger.RecordIntermediary(item.AnimeID, res.RootID); err != nil {
			return fmt.Errorf("retire item %d: %w", item.AnimeID, err)
		}
		metrics.ObserveSkip(string(media.SourceMAL), "duplicate_key")
		return nil
	}

	if err := sink.Publish(ctx, entry); err != nil {
		// Nothing recorded yet: the item is retried whole next pass.
		return fmt.Errorf("publish: %w", err)
	}
	if err := a.ledger.RecordEntry(entry); err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	// Stubs go in only after the entry is durable, so a known root always
	// means a completed series.
	for _, id := range res.Intermediaries {
		if err := a.ledger.RecordIntermediary(id, res.RootID); err != nil {
			return fmt.Errorf("record intermediary %d: %w", id, err)
		}
	}
	metrics.ObserveEntry(string(media.SourceMAL))
	a.logger.Info("anime entry published",
		zap.String("username", username),
		zap.Int("anime_id", item.AnimeID),
		zap.Int("root_id", res.RootID),
		zap.String("title", entry.Title),
	)
	return nil
}

// rootDetails avoids a metadata fetch when the item is its own root; the
// listing row already carries everything needed.
func (a *Adapter) rootDetails(ctx context.Context, item listItem, rootID int) (Details, error) {
	if rootID == item.AnimeID {
		return Details{
			ID:       item.AnimeID,
			Title:    item.Title,
			Type:     item.MediaType,
			Episodes: item.Episodes,
			Year:     yearFromStartDate(item.StartDate),
			ImageURL: item.ImagePath,
		}, nil
	}
	return a.api.Details(ctx, rootID)
}

func (a *Adapter) buildEntry(username string, item listItem, rootID int, details Details) media.Entry {
	kind := media.KindTV
	if isMovie(details.Type) {
		kind = media.KindMovie
	}
	entry := media.Entry{
		Title:    details.Title,
		Year:     details.Year,
		Kind:     kind,
		Source:   media.SourceMAL,
		Username: username,
		Anime:    true,
		Episodes: details.Episodes,
		ImageURL: details.ImageURL,
		MALID:    item.AnimeID,
		RootID:   rootID,
	}
	if ids, ok := a.table.Anime(rootID); ok {
		entry.TVDBID = ids.TVDBID
		entry.TMDBID = ids.TMDBID
	}
	return entry
}

// yearFromStartDate parses the listing's "MM-DD-YY" start date form.
func yearFromStartDate(s string) int {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 || len(parts[2]) != 2 {
		return 0
	}
	var yy int
	if _, err := fmt.Sscanf(parts[2], "%d", &yy); err != nil {
		return 0
	}
	if yy >= 50 {
		return 1900 + yy
	}
	return 2000 + yy
}
