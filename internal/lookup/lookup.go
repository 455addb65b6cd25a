// Package lookup loads the static id-mapping snapshots consulted when
// resolving source-native ids to external database ids.
package lookup

import (
	"encoding/json"
	"os"
	"strings"

	"go.uber.org/zap"
)

// AnimeIDs maps a MAL id onto external database ids.
type AnimeIDs struct {
	MALID  int    `json:"malid"`
	TVDBID int    `json:"tvdbid,omitempty"`
	TMDBID int    `json:"tmdbid,omitempty"`
	Type   string `json:"type,omitempty"`
}

// FilmIDs maps a film-site slug onto external database ids.
type FilmIDs struct {
	TMDBID int  `json:"tmdb_id,omitempty"`
	Anime  bool `json:"anime,omitempty"`
}

// Table holds both snapshots. Loaded once at startup, read-only thereafter.
type Table struct {
	anime map[int]AnimeIDs
	films map[string]FilmIDs
}

// Load reads both snapshot files. A snapshot that fails to load is logged and
// left empty; lookups against it simply miss.
func Load(animePath, filmPath string, logger *zap.Logger) *Table {
	t := &Table{
		anime: make(map[int]AnimeIDs),
		films: make(map[string]FilmIDs),
	}

	if animePath != "" {
		var rows []AnimeIDs
		if err := readJSON(animePath, &rows); err != nil {
			logger.Warn("anime id snapshot unavailable", zap.String("path", animePath), zap.Error(err))
		} else {
			for _, row := range rows {
				if row.MALID > 0 {
					t.anime[row.MALID] = row
				}
			}
		}
	}

	if filmPath != "" {
		var rows map[string]FilmIDs
		if err := readJSON(filmPath, &rows); err != nil {
			logger.Warn("film id snapshot unavailable", zap.String("path", filmPath), zap.Error(err))
		} else {
			for slug, ids := range rows {
				t.films[strings.ToLower(slug)] = ids
			}
		}
	}

	logger.Info("id lookup tables loaded",
		zap.Int("anime_ids", len(t.anime)),
		zap.Int("film_ids", len(t.films)),
	)
	return t
}

// Anime resolves a MAL id.
func (t *Table) Anime(malID int) (AnimeIDs, bool) {
	ids, ok := t.anime[malID]
	return ids, ok
}

// Film resolves a film-site slug.
func (t *Table) Film(slug string) (FilmIDs, bool) {
	ids, ok := t.films[strings.ToLower(slug)]
	return ids, ok
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
