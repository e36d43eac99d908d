package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/signaldesk-be/internal/auth"
	"github.com/isdelr/signaldesk-be/internal/database"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/isdelr/signaldesk-be/internal/store"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *store.Store
	users   *UserService
	events  *EventService
	signals *SignalService
	notes   *recordingNotifier
	charts  *fakeCharts
	tokens  *auth.TokenIssuer

	admin     models.Identity
	callmaker models.Identity
	other     models.Identity
	user      models.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(ctx, database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db, database.DriverSQLite))

	st := store.New(db, database.DriverSQLite)
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	f := &fixture{
		store:  st,
		users:  NewUserService(st.Users(), auth.NewHasher(auth.MinBcryptCost), tokens),
		events: NewEventService(st.Events()),
		notes:  &recordingNotifier{},
		charts: &fakeCharts{},
		tokens: tokens,
	}
	f.signals = NewSignalService(st.Signals(), f.events, f.notes, f.charts)

	f.admin = f.mustUser(t, "admin", models.RoleAdmin)
	f.callmaker = f.mustUser(t, "caller", models.RoleCallmaker)
	f.other = f.mustUser(t, "caller2", models.RoleCallmaker)
	f.user = f.mustUser(t, "reader", models.RoleUser)
	return f
}

func (f *fixture) mustUser(t *testing.T, username string, role models.Role) models.Identity {
	t.Helper()
	u, created, err := f.users.EnsureUser(context.Background(), username, "password123", "", role)
	require.NoError(t, err)
	require.True(t, created)
	return u.Identity()
}

func (f *fixture) mustSignal(t *testing.T, owner models.Identity, instrument string) models.Signal {
	t.Helper()
	s, err := f.signals.CreateSignal(context.Background(), owner, fields(instrument, 100, 120, 90))
	require.NoError(t, err)
	return s
}

func fields(instrument string, entry, target, stop float64) models.SignalFields {
	return models.SignalFields{
		Instrument:  &instrument,
		EntryPrice:  &entry,
		TargetPrice: &target,
		StopLoss:    &stop,
	}
}

type notification struct {
	action string
	signal models.Signal
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []notification
	counts  []int
}

func (r *recordingNotifier) SignalChanged(action string, signal models.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, notification{action: action, signal: signal})
}

func (r *recordingNotifier) PendingCount(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = append(r.counts, count)
}

func (r *recordingNotifier) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.action)
	}
	return out
}

func (r *recordingNotifier) lastCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.counts) == 0 {
		return -1
	}
	return r.counts[len(r.counts)-1]
}

type fakeCharts struct {
	uploadKey   string
	contentType string
	err         error
}

func (f *fakeCharts) PresignUpload(_ context.Context, key, contentType string) (string, time.Time, error) {
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	f.uploadKey = key
	f.contentType = contentType
	return "https://charts.example.com/" + key + "?sig=up", time.Date(2025, 1, 1, 0, 15, 0, 0, time.UTC), nil
}

func (f *fakeCharts) PresignDownload(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://charts.example.com/" + key + "?sig=down", nil
}

var errBoom = errors.New("boom")
