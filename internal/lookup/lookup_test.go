package lookup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSnapshot(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return path
}

func TestLoad_ResolvesBothSnapshots(t *testing.T) {
	animePath := writeSnapshot(t, "anime.json", `[
		{"malid": 21, "tvdbid": 81797, "type": "tv"},
		{"malid": 199, "tmdbid": 129, "type": "movie"},
		{"malid": 0, "tvdbid": 999}
	]`)
	filmPath := writeSnapshot(t, "films.json", `{
		"Fight-Club": {"tmdb_id": 550},
		"your-name": {"tmdb_id": 372058, "anime": true}
	}`)

	table := Load(animePath, filmPath, zap.NewNop())

	ids, ok := table.Anime(21)
	require.True(t, ok)
	assert.Equal(t, 81797, ids.TVDBID)
	assert.Equal(t, "tv", ids.Type)

	ids, ok = table.Anime(199)
	require.True(t, ok)
	assert.Equal(t, 129, ids.TMDBID)

	_, ok = table.Anime(0)
	assert.False(t, ok, "rows without a MAL id are dropped")

	film, ok := table.Film("fight-club")
	require.True(t, ok, "slug matching is case-insensitive")
	assert.Equal(t, 550, film.TMDBID)

	film, ok = table.Film("your-name")
	require.True(t, ok)
	assert.True(t, film.Anime)
}

func TestLoad_MissingSnapshotIsNonFatal(t *testing.T) {
	table := Load("/does/not/exist.json", "", zap.NewNop())
	_, ok := table.Anime(21)
	assert.False(t, ok)
	_, ok = table.Film("fight-club")
	assert.False(t, ok)
}

func TestLoad_MalformedSnapshotIsNonFatal(t *testing.T) {
	animePath := writeSnapshot(t, "anime.json", `{not json`)
	table := Load(animePath, "", zap.NewNop())
	_, ok := table.Anime(21)
	assert.False(t, ok)
}
