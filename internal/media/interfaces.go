package media

import (
	"context"
	"time"
)

// Sink receives one completed entry at a time. Implementations must finish
// (persist, notify) before returning; the adapter only advances the ledger
// for an entry after its sink call returns without error.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Notifier reports scrape-level failures downstream.
type Notifier interface {
	NotifyError(ctx context.Context, source Source, username string, err error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
