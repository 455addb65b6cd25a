// Package letterboxd implements the film-site watchlist adapter.
package letterboxd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/fetch"
	"github.com/pkaris/listbridge/internal/ledger"
	"github.com/pkaris/listbridge/internal/lookup"
	"github.com/pkaris/listbridge/internal/media"
	"github.com/pkaris/listbridge/internal/metrics"
)

const defaultBaseURL = "https://letterboxd.com"

var (
	tmdbMovieExpr = regexp.MustCompile(`themoviedb\.org/movie/(\d+)`)
	titleYearExpr = regexp.MustCompile(`^(.*)\s\((\d{4})\)$`)
)

// Adapter scrapes a user's film watchlist and emits resolved entries.
type Adapter struct {
	fetcher *fetch.Client
	ledger  *ledger.Ledger
	table   *lookup.Table
	logger  *zap.Logger
	baseURL string

	userAgent string
	collector *colly.Collector
}

// NewAdapter builds an Adapter. An empty baseURL selects the public site.
func NewAdapter(
	fetcher *fetch.Client,
	led *ledger.Ledger,
	table *lookup.Table,
	baseURL, userAgent string,
	logger *zap.Logger,
) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	// Revisits are the normal case: every pass walks the same watchlist URLs.
	// Synchronous collection is the collector default; colly v2.1.0's
	// Async option ignores its argument and always turns async on, so
	// the default must be left implicit.
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.WithTransport(fetcher.Transport())
	if userAgent != "" {
		c.UserAgent = userAgent
	}
	return &Adapter{
		fetcher:   fetcher,
		ledger:    led,
		table:     table,
		logger:    logger,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		collector: c,
	}
}

// Source identifies the adapter for runner bookkeeping.
func (a *Adapter) Source() media.Source {
	return media.SourceLetterboxd
}

// Scrape walks the user's watchlist one page at a time until the site stops
// paginating, resolving and publishing each film strictly in order.
func (a *Adapter) Scrape(ctx context.Context, username string, sink media.Sink) error {
	for page := 1; ; page++ {
		slugs, hasNext, err := a.listPage(ctx, username, page)
		if err != nil {
			return fmt.Errorf("watchlist %s page %d: %w", username, page, err)
		}
		if len(slugs) == 0 {
			return nil
		}
		for _, slug := range slugs {
			if err := a.processFilm(ctx, username, slug, sink); err != nil {
				a.logger.Error("film item failed",
					zap.String("username", username),
					zap.String("slug", slug),
					zap.Error(err),
				)
				metrics.ObserveSkip(string(media.SourceLetterboxd), "error")
			}
		}
		if !hasNext {
			return nil
		}
	}
}

// listPage scrapes one watchlist page and reports whether a next link exists.
func (a *Adapter) listPage(ctx context.Context, username string, page int) ([]string, bool, error) {
	var (
		slugs    []string
		hasNext  bool
		fetchErr error
	)

	collector := a.collector.Clone()
	collector.OnHTML("div.film-poster", func(e *colly.HTMLElement) {
		if slug := e.Attr("data-film-slug"); slug != "" {
			slugs = append(slugs, strings.Trim(slug, "/"))
		}
	})
	collector.OnHTML("a.next", func(*colly.HTMLElement) {
		hasNext = true
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	url := fmt.Sprintf("%s/%s/watchlist/page/%d/", a.baseURL, username, page)
	if err := a.visit(ctx, collector, url); err != nil {
		return nil, false, err
	}
	if fetchErr != nil {
		return nil, false, fetchErr
	}
	return slugs, hasNext, nil
}

func (a *Adapter) visit(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("visit canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
	}
}

func (a *Adapter) processFilm(ctx context.Context, username, slug string, sink media.Sink) error {
	sourceID := fmt.Sprintf("%s:%s", media.SourceLetterboxd, slug)
	if a.ledger.HasSourceID(sourceID) {
		metrics.ObserveSkip(string(media.SourceLetterboxd), "seen")
		return nil
	}

	film, err := a.fetchFilm(ctx, slug)
	if err != nil {
		return fmt.Errorf("film page: %w", err)
	}

	ids, known := a.table.Film(slug)
	entry := media.Entry{
		TMDBID:   ids.TMDBID,
		Title:    film.title,
		Year:     film.year,
		Kind:     media.KindMovie,
		Source:   media.SourceLetterboxd,
		Username: username,
		Anime:    ids.Anime,
		ImageURL: film.poster,
		Slug:     slug,
	}
	if !known || ids.TMDBID == 0 {
		// Side table miss: fall back to the link visible on the film's
		// own page.
		entry.TMDBID = film.tmdbID
	}

	if a.ledger.HasKey(entry.Key()) {
		metrics.ObserveSkip(string(media.SourceLetterboxd), "duplicate_key")
		return nil
	}

	if err := sink.Publish(ctx, entry); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if err := a.ledger.RecordEntry(entry); err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	metrics.ObserveEntry(string(media.SourceLetterboxd))
	a.logger.Info("film entry published",
		zap.String("username", username),
		zap.String("slug", slug),
		zap.String("title", entry.Title),
		zap.Int("tmdb_id", entry.TMDBID),
	)
	return nil
}

type filmPage struct {
	title  string
	year   int
	tmdbID int
	poster string
}

// fetchFilm loads the film's own page for title, year and the external
// database link.
func (a *Adapter) fetchFilm(ctx context.Context, slug string) (filmPage, error) {
	resp, err := a.fetcher.Get(ctx, fmt.Sprintf("%s/film/%s/", a.baseURL, slug))
	if err != nil {
		return filmPage{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return filmPage{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return filmPage{}, fmt.Errorf("parse film page: %w", err)
	}

	var film filmPage
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		film.title = og
		if m := titleYearExpr.FindStringSubmatch(og); m != nil {
			film.title = strings.TrimSpace(m[1])
			film.year, _ = strconv.Atoi(m[2])
		}
	}
	if film.title == "" {
		film.title = strings.TrimSpace(doc.Find("h1.headline-1").First().Text())
	}
	film.poster, _ = doc.Find(`meta[property="og:image"]`).Attr("content")

	doc.Find(`a[href*="themoviedb.org/movie/"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if m := tmdbMovieExpr.FindStringSubmatch(href); m != nil {
			film.tmdbID, _ = strconv.Atoi(m[1])
			return false
		}
		return true
	})

	if film.title == "" {
		return filmPage{}, fmt.Errorf("no title on film page %s", slug)
	}
	return film, nil
}
