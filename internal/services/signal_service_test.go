package services

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/isdelr/signaldesk-be/internal/apperr"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSignal_InitialStatusByRole(t *testing.T) {
	f := newFixture(t)

	pending := f.mustSignal(t, f.callmaker, "BTC/USDT")
	assert.Equal(t, models.StatusPending, pending.Status)
	assert.Equal(t, f.callmaker.ID, pending.OwnerID)
	require.NotNil(t, pending.Creator)
	assert.Equal(t, "caller", pending.Creator.Username)

	approved := f.mustSignal(t, f.admin, "ETH/USDT")
	assert.Equal(t, models.StatusApproved, approved.Status)

	assert.Equal(t, []string{ActionSignalCreated, ActionSignalCreated, ActionSignalApproved}, f.notes.actions())
	assert.Equal(t, 1, f.notes.lastCount())
}

func TestCreateSignal_UserIsForbiddenEvenWithBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.signals.CreateSignal(ctx, f.user, fields("BTC", 1, 2, 1))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.signals.CreateSignal(ctx, f.user, models.SignalFields{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	count, err := f.store.Signals().CountByStatus(ctx, models.StatusPending)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateSignal_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := strings.Repeat("X", maxInstrumentLen+1)
	badChart := "ftp://example.com/chart.png"

	cases := map[string]models.SignalFields{
		"missing everything": {},
		"missing stop":       {Instrument: fields("BTC", 1, 2, 1).Instrument, EntryPrice: ptr(1.0), TargetPrice: ptr(2.0)},
		"blank instrument":   fields("   ", 1, 2, 1),
		"long instrument":    fields(long, 1, 2, 1),
		"zero entry":         fields("BTC", 0, 2, 1),
		"negative target":    fields("BTC", 1, -2, 1),
		"nan stop":           fields("BTC", 1, 2, math.NaN()),
		"inf entry":          fields("BTC", math.Inf(1), 2, 1),
		"bad chart": func() models.SignalFields {
			f := fields("BTC", 1, 2, 1)
			f.ChartImage = &badChart
			return f
		}(),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.signals.CreateSignal(ctx, f.callmaker, in)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}
}

func TestCreateSignal_KeepsNoteAndChart(t *testing.T) {
	f := newFixture(t)
	in := fields("SOL/USDT", 20, 25, 18)
	note := "  breakout  "
	chart := "charts/x/2025/01/a.png"
	in.Note = &note
	in.ChartImage = &chart

	s, err := f.signals.CreateSignal(context.Background(), f.callmaker, in)
	require.NoError(t, err)
	assert.Equal(t, "breakout", s.Note)
	assert.Equal(t, chart, s.ChartImage)
}

func TestListings_VisibilityByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	own := f.mustSignal(t, f.callmaker, "BTC")
	others := f.mustSignal(t, f.other, "ETH")
	published := f.mustSignal(t, f.admin, "SOL")

	list, err := f.signals.ListVisible(ctx, f.user, "")
	require.NoError(t, err)
	assert.Equal(t, []string{published.ID}, signalIDs(list))

	list, err = f.signals.ListVisible(ctx, f.callmaker, "")
	require.NoError(t, err)
	assert.Equal(t, []string{own.ID}, signalIDs(list))

	list, err = f.signals.ListVisible(ctx, f.admin, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{own.ID, others.ID, published.ID}, signalIDs(list))

	list, err = f.signals.ListVisible(ctx, f.admin, "pending")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{own.ID, others.ID}, signalIDs(list))

	_, err = f.signals.ListVisible(ctx, f.admin, "archived")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	list, err = f.signals.ListApproved(ctx, f.callmaker)
	require.NoError(t, err)
	assert.Equal(t, []string{published.ID}, signalIDs(list))

	list, err = f.signals.ListOwn(ctx, f.user)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NotNil(t, list)

	_, err = f.signals.ListVisible(ctx, models.Identity{ID: "x", Role: "ghost"}, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestGetSignal_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending := f.mustSignal(t, f.callmaker, "BTC")

	_, err := f.signals.GetSignal(ctx, f.callmaker, pending.ID)
	assert.NoError(t, err)
	_, err = f.signals.GetSignal(ctx, f.admin, pending.ID)
	assert.NoError(t, err)
	_, err = f.signals.GetSignal(ctx, f.other, pending.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.signals.GetSignal(ctx, f.user, pending.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.signals.GetSignal(ctx, f.user, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransitionStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.mustSignal(t, f.callmaker, "BTC")

	approved, err := f.signals.TransitionStatus(ctx, f.admin, s.ID, "approved")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.Equal(t, f.callmaker.ID, approved.OwnerID)
	assert.Equal(t, 0, f.notes.lastCount())

	list, err := f.signals.ListVisible(ctx, f.user, "")
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, signalIDs(list))

	// Re-deciding is allowed and flagged in the audit trail.
	rejected, err := f.signals.TransitionStatus(ctx, f.admin, s.ID, "rejected")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)

	events, err := f.events.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	var reject *models.Event
	for i := range events {
		if events[i].Type == "signal.reject" {
			reject = &events[i]
		}
	}
	require.NotNil(t, reject)
	assert.Equal(t, "warn", reject.Level)
	require.NotNil(t, reject.SignalID)
	assert.Equal(t, s.ID, *reject.SignalID)
	assert.Contains(t, f.notes.actions(), ActionSignalRejected)
	assert.Contains(t, f.notes.actions(), ActionSignalWithdrawn)
}

func TestTransitionStatus_WithdrawOnlyFromApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.mustSignal(t, f.callmaker, "SOL")

	_, err := f.signals.TransitionStatus(ctx, f.admin, s.ID, "rejected")
	require.NoError(t, err)
	_, err = f.signals.TransitionStatus(ctx, f.admin, s.ID, "approved")
	require.NoError(t, err)
	_, err = f.signals.TransitionStatus(ctx, f.admin, s.ID, "approved")
	require.NoError(t, err)
	assert.NotContains(t, f.notes.actions(), ActionSignalWithdrawn)

	_, err = f.signals.TransitionStatus(ctx, f.admin, s.ID, "rejected")
	require.NoError(t, err)
	actions := f.notes.actions()
	assert.Equal(t, []string{ActionSignalRejected, ActionSignalWithdrawn}, actions[len(actions)-2:])
}

func TestTransitionStatus_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.mustSignal(t, f.callmaker, "BTC")

	_, err := f.signals.TransitionStatus(ctx, f.callmaker, s.ID, "approved")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.signals.TransitionStatus(ctx, f.user, s.ID, "garbage")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.signals.TransitionStatus(ctx, f.admin, s.ID, "pending")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.signals.TransitionStatus(ctx, f.admin, "missing", "approved")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := f.store.Signals().Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestUpdateSignal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.mustSignal(t, f.callmaker, "BTC")
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	f.signals.now = func() time.Time { return base }

	target := 150.0
	updated, err := f.signals.UpdateSignal(ctx, f.callmaker, s.ID, models.SignalFields{TargetPrice: &target})
	require.NoError(t, err)
	assert.Equal(t, 150.0, updated.TargetPrice)
	assert.Equal(t, 100.0, updated.EntryPrice)
	assert.Equal(t, models.StatusPending, updated.Status)
	assert.True(t, updated.UpdatedAt.Equal(base))

	_, err = f.signals.UpdateSignal(ctx, f.other, s.ID, models.SignalFields{TargetPrice: &target})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.signals.UpdateSignal(ctx, f.user, s.ID, models.SignalFields{TargetPrice: &target})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	bad := -1.0
	_, err = f.signals.UpdateSignal(ctx, f.callmaker, s.ID, models.SignalFields{StopLoss: &bad})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.signals.UpdateSignal(ctx, f.admin, "missing", models.SignalFields{TargetPrice: &target})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	same, err := f.signals.UpdateSignal(ctx, f.admin, s.ID, models.SignalFields{})
	require.NoError(t, err)
	assert.Equal(t, 150.0, same.TargetPrice)
}

func TestDeleteSignal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.mustSignal(t, f.callmaker, "BTC")
	theirs := f.mustSignal(t, f.other, "ETH")

	assert.ErrorIs(t, f.signals.DeleteSignal(ctx, f.callmaker, theirs.ID), apperr.ErrForbidden)
	assert.ErrorIs(t, f.signals.DeleteSignal(ctx, f.user, mine.ID), apperr.ErrForbidden)

	require.NoError(t, f.signals.DeleteSignal(ctx, f.callmaker, mine.ID))
	_, err := f.store.Signals().Get(ctx, mine.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 1, f.notes.lastCount())

	require.NoError(t, f.signals.DeleteSignal(ctx, f.admin, theirs.ID))
	assert.ErrorIs(t, f.signals.DeleteSignal(ctx, f.admin, theirs.ID), apperr.ErrNotFound)
	assert.Contains(t, f.notes.actions(), ActionSignalDeleted)
}

func TestCountPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mustSignal(t, f.callmaker, "BTC")
	f.mustSignal(t, f.other, "ETH")
	f.mustSignal(t, f.admin, "SOL")

	n, err := f.signals.CountPending(ctx, f.admin)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.signals.CountPending(ctx, f.callmaker)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestChartUploadURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signals.now = func() time.Time { return time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC) }

	up, err := f.signals.ChartUploadURL(ctx, f.callmaker, "image/PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.Key, "charts/"+f.callmaker.ID+"/2025/02/"))
	assert.True(t, strings.HasSuffix(up.Key, ".png"))
	assert.Equal(t, up.Key, f.charts.uploadKey)
	assert.Equal(t, "image/png", f.charts.contentType)
	assert.Contains(t, up.UploadURL, up.Key)

	_, err = f.signals.ChartUploadURL(ctx, f.callmaker, "application/pdf")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.signals.ChartUploadURL(ctx, f.user, "image/png")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	f.charts.err = errBoom
	_, err = f.signals.ChartUploadURL(ctx, f.callmaker, "image/png")
	assert.ErrorIs(t, err, apperr.ErrStore)

	noStorage := NewSignalService(f.store.Signals(), nil, nil, nil)
	_, err = noStorage.ChartUploadURL(ctx, f.callmaker, "image/png")
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestChartURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	keyed := fields("BTC", 1, 2, 0.5)
	key := "charts/k/2025/01/a.png"
	keyed.ChartImage = &key
	withKey, err := f.signals.CreateSignal(ctx, f.admin, keyed)
	require.NoError(t, err)

	linked := fields("ETH", 1, 2, 0.5)
	link := "https://img.example.com/eth.png"
	linked.ChartImage = &link
	withLink, err := f.signals.CreateSignal(ctx, f.admin, linked)
	require.NoError(t, err)

	bare := f.mustSignal(t, f.admin, "SOL")
	hidden := f.mustSignal(t, f.callmaker, "XRP")

	url, err := f.signals.ChartURL(ctx, f.user, withKey.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://charts.example.com/"+key+"?sig=down", url)

	url, err = f.signals.ChartURL(ctx, f.user, withLink.ID)
	require.NoError(t, err)
	assert.Equal(t, link, url)

	_, err = f.signals.ChartURL(ctx, f.user, bare.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.signals.ChartURL(ctx, f.user, hidden.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestMutationsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.mustSignal(t, f.callmaker, "BTC")
	target := 130.0
	_, err := f.signals.UpdateSignal(ctx, f.callmaker, s.ID, models.SignalFields{TargetPrice: &target})
	require.NoError(t, err)
	_, err = f.signals.TransitionStatus(ctx, f.admin, s.ID, "approved")
	require.NoError(t, err)
	require.NoError(t, f.signals.DeleteSignal(ctx, f.admin, s.ID))

	events, err := f.events.GetRecentEvents(ctx, 10)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.ElementsMatch(t, []string{"signal.create", "signal.update", "signal.approve", "signal.delete"}, types)
}

func signalIDs(list []models.Signal) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
