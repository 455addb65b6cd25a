package publish

import (
	"context"

	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/media"
)

// Pipeline implements media.Sink: it persists each completed entry to the
// list store and notifies downstream, returning only once both are done so
// the adapter can advance the ledger.
type Pipeline struct {
	store    *Store
	notifier Notifier
	logger   *zap.Logger
}

// NewPipeline builds a Pipeline.
func NewPipeline(store *Store, notifier Notifier, logger *zap.Logger) *Pipeline {
	return &Pipeline{store: store, notifier: notifier, logger: logger}
}

// Publish stores the entry and sends the notification. Notification failures
// are logged, not returned: losing a Discord message must not hold up the
// ledger or re-deliver the entry on the next pass.
func (p *Pipeline) Publish(ctx context.Context, entry media.Entry) error {
	p.store.Add(entry)
	if err := p.notifier.NotifyEntry(ctx, entry); err != nil {
		p.logger.Warn("entry notification failed",
			zap.String("title", entry.Title),
			zap.Error(err),
		)
	}
	return nil
}

// NotifyError forwards scrape-level failures to the notifier.
func (p *Pipeline) NotifyError(ctx context.Context, source media.Source, username string, err error) {
	p.notifier.NotifyError(ctx, source, username, err)
}
