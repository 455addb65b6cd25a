package mal

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/metrics"
)

// RootIndex answers whether an id is already a known series root.
type RootIndex interface {
	HasRootID(id int) bool
}

// TraceResult is the outcome of one relation walk.
type TraceResult struct {
	RootID         int
	Intermediaries []int
}

// Tracer walks Prequel/Sequel/Parent Story/Full Story links from a starting
// anime to the canonical root of its series.
type Tracer struct {
	api    MetadataAPI
	roots  RootIndex
	logger *zap.Logger

	// details fetched during one walk, so the embedding gate and the
	// parent check never hit the rate-limited upstream twice for one id
	cache map[int]Details
}

// NewTracer builds a Tracer.
func NewTracer(api MetadataAPI, roots RootIndex, logger *zap.Logger) *Tracer {
	return &Tracer{api: api, roots: roots, logger: logger}
}

// Trace resolves the canonical root for startID, whose declared type comes
// from the watchlist listing. It returns the root id plus every node consumed
// on the way that must be excluded from future processing.
//
// The walk terminates on the first revisited id (cycle), on a node with no
// parent-pointing relation, on a parent already known to the ledger as a
// root, or on a parent that is not a multi-episode TV entry.
func (t *Tracer) Trace(ctx context.Context, startID int, startType string) (TraceResult, error) {
	t.cache = make(map[int]Details)
	visited := make(map[int]struct{})
	startIsMovie := isMovie(startType)
	current := startID
	var intermediaries []int

	defer func() {
		metrics.ObserveTraceDepth(len(visited))
	}()

	for {
		if _, seen := visited[current]; seen {
			// Relation cycle; stop here rather than loop.
			t.logger.Warn("relation cycle detected", zap.Int("start_id", startID), zap.Int("at_id", current))
			return TraceResult{RootID: current, Intermediaries: intermediaries}, nil
		}
		visited[current] = struct{}{}

		rels, err := t.api.Relations(ctx, current)
		if err != nil {
			return TraceResult{}, err
		}

		// A movie is only traced into a series when it is structurally
		// embedded in one; otherwise it stands on its own.
		if current == startID && startIsMovie {
			embedded, err := t.movieEmbedded(ctx, rels)
			if err != nil {
				return TraceResult{}, err
			}
			if !embedded {
				return TraceResult{RootID: startID}, nil
			}
		}

		parent, ok := selectParent(rels, current == startID && startIsMovie)
		if !ok {
			return TraceResult{RootID: current, Intermediaries: intermediaries}, nil
		}

		// Short-circuit: the series was already resolved on an earlier
		// pass, no need to re-walk it.
		if t.roots.HasRootID(parent) {
			return TraceResult{RootID: parent, Intermediaries: intermediaries}, nil
		}

		pd, err := t.details(ctx, parent)
		if err != nil {
			return TraceResult{}, err
		}
		if !isTV(pd.Type) || pd.Episodes <= 1 {
			return TraceResult{RootID: current, Intermediaries: intermediaries}, nil
		}

		// Advancing past current: record it so it is never reprocessed,
		// except a starting movie, whose own id stays on the emitted entry.
		if !(current == startID && startIsMovie) {
			intermediaries = append(intermediaries, current)
		}
		current = parent
	}
}

// movieEmbedded reports whether the starting movie is part of a TV
// continuity: a Parent Story, Sequel or Prequel pointing at a multi-episode
// TV entry.
func (t *Tracer) movieEmbedded(ctx context.Context, rels Relations) (bool, error) {
	for _, name := range []string{RelParentStory, RelSequel, RelPrequel} {
		for _, cand := range rels[name] {
			d, err := t.details(ctx, cand.ID)
			if err != nil {
				return false, err
			}
			if isTV(d.Type) && d.Episodes > 1 {
				return true, nil
			}
		}
	}
	return false, nil
}

// selectParent picks the first parent-pointing relation in priority order.
// Sequel is only a candidate for the starting movie.
func selectParent(rels Relations, movie bool) (int, bool) {
	order := []string{RelParentStory, RelPrequel, RelFullStory}
	if movie {
		order = append(order, RelSequel)
	}
	for _, name := range order {
		if targets := rels[name]; len(targets) > 0 {
			return targets[0].ID, true
		}
	}
	return 0, false
}

func (t *Tracer) details(ctx context.Context, id int) (Details, error) {
	if d, ok := t.cache[id]; ok {
		return d, nil
	}
	d, err := t.api.Details(ctx, id)
	if err != nil {
		return Details{}, err
	}
	t.cache[id] = d
	return d, nil
}

func isMovie(animeType string) bool {
	return strings.EqualFold(animeType, "movie")
}

func isTV(animeType string) bool {
	return strings.EqualFold(animeType, "tv")
}
