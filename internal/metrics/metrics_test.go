package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordTransition("publish", nil)
	m.RecordTransition("publish", errors.New("boom"))
	m.RecordConflict("submit", "stale")
	m.RecordForkRepair(nil)
	m.RecordAuditEntry("Update", 50*time.Millisecond)
	m.RecordStoreOp("get", time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("publish", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("publish", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsTotal.WithLabelValues("submit", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ForkRepairsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditEntriesTotal.WithLabelValues("Update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOpsTotal.WithLabelValues("get", "ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordTransition("publish", nil)
	m.RecordConflict("submit", "stale")
	m.RecordStoreOp("get", time.Millisecond, nil)
	m.RecordForkRepair(nil)
	m.RecordAuditEntry("Create", time.Second)
}

func TestMetrics_Handler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordTransition("archive", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `dashboards_transitions_total{event="archive",status="ok"} 1`))
}
