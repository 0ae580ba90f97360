package metrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-viewer/internal/errors"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{errors.RemoteError("boom"), "remote_error"},
		{fmt.Errorf("wrapped: %w", errors.SessionEnded("s1")), "session_ended"},
		{io.EOF, "unknown_error"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Outcome(tc.err))
	}
}

func TestObserveQuery(t *testing.T) {
	counter := queries.With(prometheus.Labels{"query": "describe", "outcome": "remote_error"})
	before := testutil.ToFloat64(counter)

	ObserveQuery("describe", errors.RemoteError("bad mode"), 10*time.Millisecond)
	ObserveQuery("describe", errors.RemoteError("bad mode"), 10*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestRecordInstall(t *testing.T) {
	counter := installs.With(prometheus.Labels{"outcome": OutcomeOK})
	before := testutil.ToFloat64(counter)

	RecordInstall(nil)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHandler(t *testing.T) {
	SetSessionsActive(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(sessionsActive))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "dapviewer_sessions_active 3")
}
