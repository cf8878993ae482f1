package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Bazaar/internal/hermes"
	"github.com/MikeSquared-Agency/Bazaar/internal/matchcache"
	"github.com/MikeSquared-Agency/Bazaar/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockExpirer struct {
	mock.Mock
}

func (m *mockExpirer) ExpireDue(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockHermes struct {
	mu       sync.Mutex
	handlers map[string]func(string, []byte)
}

func (m *mockHermes) Publish(_ string, _ interface{}) error { return nil }

func (m *mockHermes) Subscribe(subject string, handler func(string, []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = make(map[string]func(string, []byte))
	}
	m.handlers[subject] = handler
	return nil
}

func (m *mockHermes) Close() {}

func (m *mockHermes) deliver(t *testing.T, pattern, subject string, evt interface{}) {
	t.Helper()
	m.mu.Lock()
	h, ok := m.handlers[pattern]
	m.mu.Unlock()
	require.True(t, ok, "no subscription for %s", pattern)
	var data []byte
	if evt != nil {
		var err error
		data, err = json.Marshal(evt)
		require.NoError(t, err)
	}
	h(subject, data)
}

func TestSweep(t *testing.T) {
	exp := &mockExpirer{}
	exp.On("ExpireDue", mock.Anything).Return(2, nil).Once()
	exp.On("ExpireDue", mock.Anything).Return(0, errors.New("db down")).Once()

	b := New(exp, nil, nil, time.Minute, testLogger())
	b.sweep(context.Background())
	b.sweep(context.Background())
	exp.AssertNumberOfCalls(t, "ExpireDue", 2)
}

type countingExpirer struct{ calls atomic.Int32 }

func (c *countingExpirer) ExpireDue(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestExpiryLoopRunsUntilStopped(t *testing.T) {
	exp := &countingExpirer{}
	b := New(exp, nil, nil, 5*time.Millisecond, testLogger())
	b.Start(context.Background())
	assert.Eventually(t, func() bool { return exp.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	b.Stop()

	n := exp.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, exp.calls.Load())
	b.Stop()
}

func TestProfileUpdateInvalidatesMatches(t *testing.T) {
	ctx := context.Background()
	cache := matchcache.NewMemoryCache()
	h := &mockHermes{}
	b := New(nil, cache, h, time.Minute, testLogger())
	b.SetupSubscriptions()

	matchA, matchB := store.Match{FreelancerID: "fl-1"}, store.Match{FreelancerID: "fl-2"}
	require.NoError(t, cache.Put(ctx, &matchA, 0))
	require.NoError(t, cache.Put(ctx, &matchB, 0))

	h.deliver(t, hermes.SubjectProfileUpdated, "market.profile.fl-1.updated",
		hermes.ProfileUpdatedEvent{ProfileID: "fl-1", Kind: "freelancer", Version: 4})
	_, err := cache.Get(ctx, matchA.JobID, "fl-1")
	assert.ErrorIs(t, err, matchcache.ErrNotFound)

	// Client profiles do not feed matches.
	h.deliver(t, hermes.SubjectProfileUpdated, "market.profile.fl-2.updated",
		hermes.ProfileUpdatedEvent{ProfileID: "fl-2", Kind: "client"})
	_, err = cache.Get(ctx, matchB.JobID, "fl-2")
	assert.NoError(t, err)

	// The id falls back to the subject when the payload is empty.
	h.deliver(t, hermes.SubjectProfileUpdated, "market.profile.fl-2.updated", nil)
	_, err = cache.Get(ctx, matchB.JobID, "fl-2")
	assert.ErrorIs(t, err, matchcache.ErrNotFound)
}

func TestSetupSubscriptionsWithoutHermes(t *testing.T) {
	b := New(nil, nil, nil, 0, testLogger())
	assert.NotPanics(t, b.SetupSubscriptions)
	assert.Equal(t, time.Minute, b.interval)
}

func TestSplitSubject(t *testing.T) {
	assert.Equal(t, []string{"market", "profile", "fl-1", "updated"}, splitSubject("market.profile.fl-1.updated"))
	assert.Equal(t, []string{"single"}, splitSubject("single"))
}
