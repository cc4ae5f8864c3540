package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "dashboards/internal/domain/models/dashboard"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/feed"
)

// queueFeed hands out events in order and puts a retried event back at the front.
type queueFeed struct {
	mu     sync.Mutex
	events []repositories.ChangeEvent
	acked  []string
	// retryable controls whether deliveries carry a Retry hook
	retryable bool
}

func (q *queueFeed) Receive(context.Context) (*repositories.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil, feed.ErrClosed
	}
	event := q.events[0]
	q.events = q.events[1:]
	d := &repositories.Delivery{
		Event: event,
		Ack: func(context.Context) error {
			q.mu.Lock()
			defer q.mu.Unlock()
			q.acked = append(q.acked, event.ID)
			return nil
		},
	}
	if q.retryable {
		d.Retry = func(context.Context) error {
			q.mu.Lock()
			defer q.mu.Unlock()
			q.events = append([]repositories.ChangeEvent{event}, q.events...)
			return nil
		}
	}
	return d, nil
}

func (q *queueFeed) Close() error { return nil }

// flakyAudit fails the first failures appends
type flakyAudit struct {
	mu       sync.Mutex
	failures int
	entries  []*models.AuditLogEntry
}

func (f *flakyAudit) Append(_ context.Context, entry *models.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("store unavailable")
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *flakyAudit) List(context.Context, string) ([]*models.AuditLogEntry, error) {
	return nil, nil
}

func TestConsumer_RetriesFailedAppend(t *testing.T) {
	first := models.Dashboard{ID: "v1", FamilyID: "fam", Version: 1, Name: "A", State: models.StateDraft, CreatedBy: "alice", UpdatedBy: "alice", UpdatedAt: "t1"}
	second := models.Dashboard{ID: "v2", FamilyID: "fam", Version: 2, Name: "B", State: models.StateDraft, CreatedBy: "bob", UpdatedBy: "bob", UpdatedAt: "t2"}
	events := []repositories.ChangeEvent{
		{ID: "c1", ObservedAt: observed, Change: repositories.NewChange(nil, dashboardItem(t, first))},
		{ID: "c2", ObservedAt: observed, Change: repositories.NewChange(nil, dashboardItem(t, second))},
	}

	tests := []struct {
		name        string
		retryable   bool
		failures    int
		wantChanges []string
		wantAcked   []string
	}{
		{"no failures", true, 0, []string{"c1", "c2"}, []string{"c1", "c2"}},
		{"failed append is redelivered in order", true, 2, []string{"c1", "c2"}, []string{"c1", "c2"}},
		{"feed without retry leaves entry unacked", false, 1, []string{"c2"}, []string{"c2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &queueFeed{events: append([]repositories.ChangeEvent(nil), events...), retryable: tt.retryable}
			repo := &flakyAudit{failures: tt.failures}
			c := NewConsumer(src, repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
			c.RetryDelay = time.Millisecond

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			require.NoError(t, c.Run(ctx))

			var got []string
			for _, e := range repo.entries {
				got = append(got, e.ChangeID)
			}
			assert.Equal(t, tt.wantChanges, got)
			assert.Equal(t, tt.wantAcked, src.acked)
		})
	}
}
