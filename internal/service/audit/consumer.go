package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dashboards/internal/domain/repositories"
	"dashboards/internal/feed"
	"dashboards/internal/metrics"
)

// Consumer writes audit entries for events read from the change feed. It
// runs apart from the write path, so audit latency never delays a request.
type Consumer struct {
	sub     repositories.ChangeSubscriber
	repo    repositories.AuditRepository
	metrics *metrics.Metrics
	logger  *slog.Logger

	// RetryDelay is the pause after a failed receive
	RetryDelay time.Duration
	now        func() time.Time
}

// NewConsumer creates a new audit consumer
func NewConsumer(sub repositories.ChangeSubscriber, repo repositories.AuditRepository, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	return &Consumer{
		sub:        sub,
		repo:       repo,
		metrics:    m,
		logger:     logger,
		RetryDelay: time.Second,
		now:        time.Now,
	}
}

// Run processes events until ctx is done or the feed closes
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("audit consumer started")
	defer c.logger.Info("audit consumer stopped")

	for {
		d, err := c.sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, feed.ErrClosed) {
				return nil
			}
			c.logger.Warn("change feed receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.RetryDelay):
			}
			continue
		}

		if err := c.Handle(ctx, d); err != nil {
			c.logger.Error("failed to write audit entry", "change_id", d.Event.ID, "error", err)
			if d.Retry != nil {
				if rerr := d.Retry(ctx); rerr != nil {
					c.logger.Warn("change feed retry failed", "change_id", d.Event.ID, "error", rerr)
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.RetryDelay):
			}
		}
	}
}

// Handle derives and stores the entry for one delivery, then acknowledges it.
// Entries are keyed by change id, so handling a redelivery rewrites the same entry.
func (c *Consumer) Handle(ctx context.Context, d *repositories.Delivery) error {
	entry, err := Derive(d.Event)
	if err != nil {
		// An undecodable image will not decode on redelivery either.
		c.logger.Error("skipping change that cannot be audited", "change_id", d.Event.ID, "error", err)
		return d.Ack(ctx)
	}

	if entry != nil {
		if err := c.repo.Append(ctx, entry); err != nil {
			return err
		}
		c.metrics.RecordAuditEntry(string(entry.Event), c.now().Sub(d.Event.ObservedAt))
		c.logger.Debug("audit entry written",
			"family_id", entry.FamilyID,
			"event", entry.Event,
			"item_type", entry.ItemType,
			"change_id", entry.ChangeID,
		)
	}
	return d.Ack(ctx)
}
