package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	scanCalls  int
	sweepCalls int
	sweepDays  int
	err        error
}

func (f *fakeEnqueuer) EnqueueStockAlertScan(_ context.Context, _ time.Time) (*asynq.TaskInfo, error) {
	f.scanCalls++
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "scan-1", Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) EnqueueBatchExpirySweep(_ context.Context, withinDays int) (*asynq.TaskInfo, error) {
	f.sweepCalls++
	f.sweepDays = withinDays
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "sweep-1", Queue: QueueDefault}, nil
}

func newTestRouter(enqueuer Enqueuer) chi.Router {
	h := NewHandler(nil, enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	r.Route("/jobs", h.MountRoutes)
	return r
}

func TestTriggerAlertScanEnqueues(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestRouter(enq)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/trigger/alert-scan", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, enq.scanCalls)
	require.Contains(t, rec.Body.String(), `"task_id":"scan-1"`)
}

func TestTriggerExpirySweepPassesDays(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestRouter(enq)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/trigger/expiry-sweep?days=14", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, enq.sweepCalls)
	require.Equal(t, 14, enq.sweepDays)
}

func TestTriggerExpirySweepRejectsBadDays(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newTestRouter(enq)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/trigger/expiry-sweep?days=-3", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, enq.sweepCalls)
}

func TestTriggerUnavailableWithoutEnqueuer(t *testing.T) {
	router := newTestRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/trigger/alert-scan", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTriggerSurfacesEnqueueFailure(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("redis down")}
	router := newTestRouter(enq)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/trigger/alert-scan", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
