package publish

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkaris/listbridge/internal/media"
)

func movie(tmdbID int, title string) media.Entry {
	return media.Entry{TMDBID: tmdbID, Title: title, Kind: media.KindMovie, Source: media.SourceLetterboxd, Username: "alice"}
}

func series(tvdbID int, title string) media.Entry {
	return media.Entry{TVDBID: tvdbID, Title: title, Kind: media.KindTV, Source: media.SourceMAL, Username: "bob"}
}

func TestStore_SeededFromLedger(t *testing.T) {
	s := NewStore([]media.Entry{
		movie(550, "Fight Club"),
		series(81797, "One Piece"),
	})
	assert.Equal(t, 2, s.Len())

	movies := s.ByKind(media.KindMovie)
	require.Len(t, movies, 1)
	assert.Equal(t, "Fight Club", movies[0].Title)

	shows := s.ByKind(media.KindTV)
	require.Len(t, shows, 1)
	assert.Equal(t, "One Piece", shows[0].Title)
}

func TestStore_AddDeduplicatesByKey(t *testing.T) {
	s := NewStore(nil)
	s.Add(movie(550, "Fight Club"))
	s.Add(movie(550, "Fight Club"))
	assert.Equal(t, 1, s.Len())
}

func TestStore_PreservesPublishOrder(t *testing.T) {
	s := NewStore(nil)
	s.Add(movie(1, "First"))
	s.Add(movie(2, "Second"))
	s.Add(movie(3, "Third"))

	movies := s.ByKind(media.KindMovie)
	require.Len(t, movies, 3)
	assert.Equal(t, "First", movies[0].Title)
	assert.Equal(t, "Third", movies[2].Title)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(2)
		id := i
		go func() {
			defer wg.Done()
			s.Add(movie(id, "Film"))
		}()
		go func() {
			defer wg.Done()
			_ = s.ByKind(media.KindMovie)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
