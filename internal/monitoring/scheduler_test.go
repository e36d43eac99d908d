package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	pruned    []time.Duration
	pruneN    int64
	pruneErr  error
	created   []string
	createErr error
}

func (f *fakeEvents) CreateEvent(_ context.Context, eventType, _, _ string, _, _ *string) error {
	f.created = append(f.created, eventType)
	return f.createErr
}

func (f *fakeEvents) GetRecentEvents(context.Context, int) ([]models.Event, error) {
	return nil, nil
}

func (f *fakeEvents) PruneEvents(_ context.Context, olderThan time.Duration) (int64, error) {
	f.pruned = append(f.pruned, olderThan)
	return f.pruneN, f.pruneErr
}

type fakeCounter struct {
	count int
	err   error
}

func (f fakeCounter) CountByStatus(_ context.Context, status models.SignalStatus) (int, error) {
	if status != models.StatusPending {
		return 0, errors.New("unexpected status")
	}
	return f.count, f.err
}

type fakeNotifier struct{ counts []int }

func (f *fakeNotifier) PendingCount(count int) { f.counts = append(f.counts, count) }

func TestNewScheduler_RegistersJobs(t *testing.T) {
	s, err := NewScheduler(&fakeEvents{}, fakeCounter{}, nil, Options{PruneSpec: DefaultPruneSpec, DigestSpec: DefaultDigestSpec})
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)
	assert.Equal(t, DefaultEventRetention, s.opts.EventRetention)

	s, err = NewScheduler(&fakeEvents{}, fakeCounter{}, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, s.cron.Entries())

	_, err = NewScheduler(&fakeEvents{}, fakeCounter{}, nil, Options{PruneSpec: "not a cron"})
	assert.Error(t, err)
	_, err = NewScheduler(&fakeEvents{}, fakeCounter{}, nil, Options{DigestSpec: "@every nope"})
	assert.Error(t, err)
}

func TestPruneEvents(t *testing.T) {
	events := &fakeEvents{pruneN: 4}
	s, err := NewScheduler(events, fakeCounter{}, nil, Options{EventRetention: 48 * time.Hour})
	require.NoError(t, err)

	require.NoError(t, s.pruneEvents(context.Background()))
	assert.Equal(t, []time.Duration{48 * time.Hour}, events.pruned)
	assert.Equal(t, []string{"events.prune"}, events.created)

	events.pruneN = 0
	require.NoError(t, s.pruneEvents(context.Background()))
	assert.Len(t, events.created, 1)

	events.pruneErr = errors.New("db down")
	assert.Error(t, s.pruneEvents(context.Background()))
}

func TestPendingDigest(t *testing.T) {
	notifier := &fakeNotifier{}
	s, err := NewScheduler(&fakeEvents{}, fakeCounter{count: 7}, notifier, Options{})
	require.NoError(t, err)

	require.NoError(t, s.pendingDigest(context.Background()))
	assert.Equal(t, []int{7}, notifier.counts)

	s.signals = fakeCounter{err: errors.New("db down")}
	assert.Error(t, s.pendingDigest(context.Background()))
	assert.Len(t, notifier.counts, 1)
}

func TestStartStop(t *testing.T) {
	s, err := NewScheduler(&fakeEvents{}, fakeCounter{}, nil, Options{DigestSpec: "@every 1h"})
	require.NoError(t, err)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.NoError(t, ctx.Err())
}
