package reconciler_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"alertsync/internal/models"
	"alertsync/internal/reconciler"
	"alertsync/internal/remote"
	"alertsync/internal/sink"
	"alertsync/internal/store"
)

type fakeStore struct {
	mu         sync.Mutex
	records    map[string]models.MappingRecord
	failUpsert bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]models.MappingRecord)}
}

func (s *fakeStore) Get(_ context.Context, alertID string) (models.MappingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[alertID]
	if !ok {
		return models.MappingRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) List(_ context.Context) ([]models.MappingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list []models.MappingRecord
	for _, rec := range s.records {
		list = append(list, rec)
	}
	return list, nil
}

func (s *fakeStore) ListActive(ctx context.Context) ([]models.MappingRecord, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var active []models.MappingRecord
	for _, rec := range all {
		if rec.Active() {
			active = append(active, rec)
		}
	}
	return active, nil
}

func (s *fakeStore) Upsert(_ context.Context, rec models.MappingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert {
		return errors.New("disk full")
	}
	s.records[rec.AlertID] = rec
	return nil
}

func (s *fakeStore) MarkClosed(_ context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[alertID]
	if !ok {
		return store.ErrNotFound
	}
	rec.Status = models.MappingClosed
	rec.UpdatedAt = time.Now().UTC()
	s.records[alertID] = rec
	return nil
}

func (s *fakeStore) Close() error { return nil }

type fakeSink struct {
	creates  []string
	closes   []string
	reopens  []string
	statuses map[string]sink.TicketStatus

	createErr map[string]error
	closeErr  map[string]error
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		statuses:  make(map[string]sink.TicketStatus),
		createErr: make(map[string]error),
		closeErr:  make(map[string]error),
	}
}

func (s *fakeSink) CreateTicket(_ context.Context, req sink.TicketRequest) (string, error) {
	if err := s.createErr[req.DedupKey]; err != nil {
		return "", err
	}
	s.creates = append(s.creates, req.DedupKey)
	return "T-" + req.DedupKey, nil
}

func (s *fakeSink) CloseTicket(_ context.Context, ticketID string) error {
	if err := s.closeErr[ticketID]; err != nil {
		return err
	}
	s.closes = append(s.closes, ticketID)
	return nil
}

func (s *fakeSink) ReopenTicket(_ context.Context, ticketID string, _ sink.TicketRequest) error {
	s.reopens = append(s.reopens, ticketID)
	return nil
}

func (s *fakeSink) TicketStatus(_ context.Context, ticketID string) (sink.TicketStatus, error) {
	if st, ok := s.statuses[ticketID]; ok {
		return st, nil
	}
	return sink.StatusUnknown, nil
}

func (s *fakeSink) calls() int {
	return len(s.creates) + len(s.closes) + len(s.reopens)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func openAlert(id string) models.Alert {
	return models.Alert{
		ID:          id,
		Host:        "web01",
		Description: "High CPU",
		Status:      models.AlertOpen,
		Severity:    4,
		FirstSeen:   time.Now().UTC(),
		LastSeen:    time.Now().UTC(),
	}
}

func resolvedAlert(id string) models.Alert {
	a := openAlert(id)
	a.Status = models.AlertResolved
	return a
}

func TestReconcileCreatesTicketForNewOpenAlert(t *testing.T) {
	st := newFakeStore()
	sk := newFakeSink()
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	report, err := rec.Reconcile(context.Background(), []models.Alert{openAlert("A1")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Equal(t, []string{"A1"}, sk.creates)

	m, err := st.Get(context.Background(), "A1")
	require.NoError(t, err)
	require.Equal(t, "T-A1", m.TicketID)
	require.True(t, m.Active())
	require.Equal(t, 0, report.ExitCode())
}

func TestReconcileClosesTicketForResolvedAlert(t *testing.T) {
	st := newFakeStore()
	require.NoError(t, st.Upsert(context.Background(), models.NewMapping("A1", "T1", time.Now().UTC())))
	sk := newFakeSink()
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	report, err := rec.Reconcile(context.Background(), []models.Alert{resolvedAlert("A1")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Closed)
	require.Equal(t, []string{"T1"}, sk.closes)

	m, err := st.Get(context.Background(), "A1")
	require.NoError(t, err)
	require.False(t, m.Active())
}

func TestReconcileOpenAlertWithMappingIsNoop(t *testing.T) {
	st := newFakeStore()
	require.NoError(t, st.Upsert(context.Background(), models.NewMapping("A1", "T1", time.Now().UTC())))
	sk := newFakeSink()
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	report, err := rec.Reconcile(context.Background(), []models.Alert{openAlert("A1")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Unchanged)
	require.Zero(t, sk.calls())
}

func TestReconcileIsIdempotent(t *testing.T) {
	st := newFakeStore()
	sk := newFakeSink()
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())
	snapshot := []models.Alert{openAlert("A1"), openAlert("A2"), resolvedAlert("A3")}

	_, err := rec.Reconcile(context.Background(), snapshot)
	require.NoError(t, err)
	callsAfterFirst := sk.calls()

	report, err := rec.Reconcile(context.Background(), snapshot)
	require.NoError(t, err)
	require.Equal(t, callsAfterFirst, sk.calls(), "second run must make no additional remote calls")
	require.Equal(t, 2, report.Unchanged)
}

func TestReconcilePartialFailureIsolation(t *testing.T) {
	st := newFakeStore()
	sk := newFakeSink()
	sk.createErr["A2"] = remote.NewTransient("pagerduty enqueue", 503, errors.New("upstream unavailable"))
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	report, err := rec.Reconcile(context.Background(), []models.Alert{openAlert("A1"), openAlert("A2")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.ExitCode())
	require.Len(t, report.Failures, 1)
	require.Equal(t, "A2", report.Failures[0].AlertID)
	require.Equal(t, "create", report.Failures[0].Stage)

	// No mapping may exist for the failed alert, so the next run retries
	_, err = st.Get(context.Background(), "A2")
	require.ErrorIs(t, err, store.ErrNotFound)

	// The failed alert is retried on the next run
	sk.createErr = map[string]error{}
	report, err = rec.Reconcile(context.Background(), []models.Alert{openAlert("A1"), openAlert("A2")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, report.Unchanged)
}

func TestReconcileClosesVanishedAlerts(t *testing.T) {
	st := newFakeStore()
	require.NoError(t, st.Upsert(context.Background(), models.NewMapping("A1", "T1", time.Now().UTC())))
	sk := newFakeSink()
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	report, err := rec.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Closed)
	require.Equal(t, []string{"T1"}, sk.closes)
}

func TestReconcileIgnoresNeverSeenResolvedAlerts(t *testing.T) {
	st := newFakeStore()
	sk := newFakeSink()
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	report, err := rec.Reconcile(context.Background(), []models.Alert{resolvedAlert("A1")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Ignored)
	require.Zero(t, sk.calls())

	_, err = st.Get(context.Background(), "A1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestReconcileReopensExternallyClosedTicket(t *testing.T) {
	st := newFakeStore()
	require.NoError(t, st.Upsert(context.Background(), models.NewMapping("A1", "T1", time.Now().UTC())))
	sk := newFakeSink()
	sk.statuses["T1"] = sink.StatusClosed
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	report, err := rec.Reconcile(context.Background(), []models.Alert{openAlert("A1")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Reopened)
	require.Equal(t, []string{"T1"}, sk.reopens)
}

func TestReconcileLeavesExternallyClosedTicketWhenPolicySaysSo(t *testing.T) {
	st := newFakeStore()
	require.NoError(t, st.Upsert(context.Background(), models.NewMapping("A1", "T1", time.Now().UTC())))
	sk := newFakeSink()
	sk.statuses["T1"] = sink.StatusClosed
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: false}, testLogger())

	report, err := rec.Reconcile(context.Background(), []models.Alert{openAlert("A1")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Unchanged)
	require.Zero(t, sk.calls())
}

func TestReconcileStoreFailureAfterCreateAbortsRun(t *testing.T) {
	st := newFakeStore()
	st.failUpsert = true
	sk := newFakeSink()
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	report, err := rec.Reconcile(context.Background(), []models.Alert{openAlert("A1")})
	require.Error(t, err)
	require.Len(t, report.Inconsistencies, 1)
	require.Contains(t, report.Inconsistencies[0], "T-A1")
	require.Equal(t, 2, report.ExitCode())
}

func TestReconcileCloseFailureLeavesMappingActiveForRetry(t *testing.T) {
	st := newFakeStore()
	require.NoError(t, st.Upsert(context.Background(), models.NewMapping("A1", "T1", time.Now().UTC())))
	sk := newFakeSink()
	sk.closeErr["T1"] = remote.NewTransient("pagerduty enqueue", 502, errors.New("bad gateway"))
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	report, err := rec.Reconcile(context.Background(), []models.Alert{resolvedAlert("A1")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)

	m, err := st.Get(context.Background(), "A1")
	require.NoError(t, err)
	require.True(t, m.Active(), "mapping must stay active so the close is retried")

	sk.closeErr = map[string]error{}
	report, err = rec.Reconcile(context.Background(), []models.Alert{resolvedAlert("A1")})
	require.NoError(t, err)
	require.Equal(t, 1, report.Closed)
}

func TestReconcileOne(t *testing.T) {
	st := newFakeStore()
	sk := newFakeSink()
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	report, err := rec.ReconcileOne(context.Background(), openAlert("A1"))
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)

	// Same event again: no-op
	report, err = rec.ReconcileOne(context.Background(), openAlert("A1"))
	require.NoError(t, err)
	require.Equal(t, 1, report.Unchanged)
	require.Len(t, sk.creates, 1)

	// Resolution closes the ticket
	report, err = rec.ReconcileOne(context.Background(), resolvedAlert("A1"))
	require.NoError(t, err)
	require.Equal(t, 1, report.Closed)

	// Resolution after closure is ignored
	report, err = rec.ReconcileOne(context.Background(), resolvedAlert("A1"))
	require.NoError(t, err)
	require.Equal(t, 1, report.Ignored)
}

func TestReconcileReportsReopenedAlertAfterClosure(t *testing.T) {
	st := newFakeStore()
	sk := newFakeSink()
	rec := reconciler.New(st, sk, reconciler.Policy{ReopenClosed: true}, testLogger())

	_, err := rec.ReconcileOne(context.Background(), openAlert("A1"))
	require.NoError(t, err)
	_, err = rec.ReconcileOne(context.Background(), resolvedAlert("A1"))
	require.NoError(t, err)

	// The trigger fires again: a fresh ticket is created over the closed
	// mapping, keeping one active mapping per alert
	report, err := rec.ReconcileOne(context.Background(), openAlert("A1"))
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Len(t, sk.creates, 2)

	m, err := st.Get(context.Background(), "A1")
	require.NoError(t, err)
	require.True(t, m.Active())
}
