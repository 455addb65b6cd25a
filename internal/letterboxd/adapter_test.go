package letterboxd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/fetch"
	"github.com/pkaris/listbridge/internal/ledger"
	"github.com/pkaris/listbridge/internal/lookup"
	"github.com/pkaris/listbridge/internal/media"
)

type captureSink struct {
	entries []media.Entry
}

func (s *captureSink) Publish(_ context.Context, e media.Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func watchlistPage(slugs []string, hasNext bool) string {
	var body string
	for _, slug := range slugs {
		body += fmt.Sprintf(`<div class="film-poster" data-film-slug="%s"></div>`, slug)
	}
	if hasNext {
		body += `<a class="next" href="#">Older</a>`
	}
	return `<html><body><ul class="poster-list">` + body + `</ul></body></html>`
}

func filmPageHTML(title string, year, tmdbID int) string {
	page := fmt.Sprintf(`<html><head>
		<meta property="og:title" content="%s (%d)" />
		<meta property="og:image" content="https://posters.example/%d.jpg" />
	</head><body><h1 class="headline-1">%s</h1>`, title, year, tmdbID, title)
	if tmdbID > 0 {
		page += fmt.Sprintf(`<p class="text-link"><a href="https://www.themoviedb.org/movie/%d/" data-track-action="TMDB">TMDB</a></p>`, tmdbID)
	}
	return page + `</body></html>`
}

func testSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/alice/watchlist/page/1/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, watchlistPage([]string{"fight-club", "your-name"}, true))
	})
	mux.HandleFunc("/alice/watchlist/page/2/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, watchlistPage([]string{"obscure-film"}, false))
	})
	mux.HandleFunc("/film/fight-club/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, filmPageHTML("Fight Club", 1999, 550))
	})
	mux.HandleFunc("/film/your-name/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, filmPageHTML("Your Name.", 2016, 372058))
	})
	mux.HandleFunc("/film/obscure-film/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, filmPageHTML("Obscure Film", 2021, 0))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testLookupTable(t *testing.T) *lookup.Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "film-ids.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"your-name": {"tmdb_id": 372058, "anime": true}
	}`), 0o640))
	return lookup.Load("", path, zap.NewNop())
}

func newTestAdapter(t *testing.T, baseURL string) (*Adapter, *ledger.Ledger) {
	t.Helper()
	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.jsonl"), systemClock{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	fetcher := fetch.New(fetch.Config{Timeout: 5 * time.Second}, zap.NewNop())
	return NewAdapter(fetcher, led, testLookupTable(t), baseURL, "listbridge-test", zap.NewNop()), led
}

func TestAdapter_ScrapesPagedWatchlist(t *testing.T) {
	srv := testSite(t)
	adapter, led := newTestAdapter(t, srv.URL)
	sink := &captureSink{}

	require.NoError(t, adapter.Scrape(context.Background(), "alice", sink))

	require.Len(t, sink.entries, 3, "both pages are walked")

	first := sink.entries[0]
	assert.Equal(t, "Fight Club", first.Title)
	assert.Equal(t, 1999, first.Year)
	assert.Equal(t, 550, first.TMDBID, "side table miss falls back to the page's own link")
	assert.Equal(t, media.KindMovie, first.Kind)
	assert.Equal(t, "fight-club", first.Slug)
	assert.False(t, first.Anime)

	second := sink.entries[1]
	assert.Equal(t, 372058, second.TMDBID, "side table hit wins")
	assert.True(t, second.Anime, "the side table flags anime films")

	third := sink.entries[2]
	assert.Equal(t, "Obscure Film", third.Title)
	assert.Zero(t, third.TMDBID, "no id anywhere leaves the composite key in charge")

	assert.True(t, led.HasSourceID("letterboxd:fight-club"))
	assert.True(t, led.HasKey("tmdb:550"))
	assert.True(t, led.HasKey(third.Key()))
}

func TestAdapter_SecondScrapeIsIdempotent(t *testing.T) {
	srv := testSite(t)
	adapter, _ := newTestAdapter(t, srv.URL)
	sink := &captureSink{}

	require.NoError(t, adapter.Scrape(context.Background(), "alice", sink))
	require.NoError(t, adapter.Scrape(context.Background(), "alice", sink))

	assert.Len(t, sink.entries, 3, "seen slugs are skipped without fetching")
}

func TestAdapter_EmptyWatchlist(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ghost/watchlist/page/1/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, watchlistPage(nil, false))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter, _ := newTestAdapter(t, srv.URL)
	sink := &captureSink{}
	require.NoError(t, adapter.Scrape(context.Background(), "ghost", sink))
	assert.Empty(t, sink.entries)
}

func TestFetchFilm_ParsesTitleYearAndLink(t *testing.T) {
	srv := testSite(t)
	adapter, _ := newTestAdapter(t, srv.URL)

	film, err := adapter.fetchFilm(context.Background(), "fight-club")
	require.NoError(t, err)
	assert.Equal(t, "Fight Club", film.title)
	assert.Equal(t, 1999, film.year)
	assert.Equal(t, 550, film.tmdbID)
	assert.Equal(t, "https://posters.example/550.jpg", film.poster)
}
