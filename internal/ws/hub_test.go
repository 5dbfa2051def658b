package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, opts ...HubOption) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(opts...)
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

// testPeer stands in for a session: it owns the inbox behind a Recipient.
type testPeer struct {
	inbox chan string
	done  chan struct{}
}

func newTestPeer() *testPeer {
	return &testPeer{inbox: make(chan string, 16), done: make(chan struct{})}
}

func (p *testPeer) recipient() Recipient { return NewRecipient(p.inbox, p.done) }

func (p *testPeer) next(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-p.inbox:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivery")
		return ""
	}
}

func join(t *testing.T, h *Hub, p *testPeer) SessionID {
	t.Helper()
	id, err := h.Join(context.Background(), p.recipient())
	require.NoError(t, err)
	return id
}

// settle returns once the hub has handled everything queued before it.
func settle(t *testing.T, h *Hub) []SessionID {
	t.Helper()
	ids, err := h.Sessions(context.Background())
	require.NoError(t, err)
	return ids
}

func TestHubJoinWelcomesAndAnnounces(t *testing.T) {
	h := startHub(t)
	a, b := newTestPeer(), newTestPeer()

	idA := join(t, h, a)
	assert.Equal(t, SessionID(1), idA)
	assert.Equal(t, WelcomeNotice, a.next(t))

	idB := join(t, h, b)
	assert.Equal(t, SessionID(2), idB)
	assert.Equal(t, WelcomeNotice, b.next(t))
	assert.Equal(t, JoinedNotice, a.next(t))

	settle(t, h)
	assert.Empty(t, b.inbox, "joiner must not hear its own join notice")
}

func TestHubRelaySkipsSender(t *testing.T) {
	h := startHub(t)
	a, b, c := newTestPeer(), newTestPeer(), newTestPeer()
	idA := join(t, h, a)
	join(t, h, b)
	join(t, h, c)
	settle(t, h)
	drain(a, b, c)

	require.NoError(t, h.Relay(idA, "hello"))
	settle(t, h)

	assert.Equal(t, "hello", b.next(t))
	assert.Equal(t, "hello", c.next(t))
	assert.Empty(t, a.inbox)
}

func TestHubRelayWithNobodyElse(t *testing.T) {
	h := startHub(t)
	a := newTestPeer()
	idA := join(t, h, a)
	settle(t, h)
	drain(a)

	require.NoError(t, h.Relay(idA, "anyone?"))
	settle(t, h)
	assert.Empty(t, a.inbox)
}

func TestHubRelayFromUnregisteredSenderReachesEveryone(t *testing.T) {
	h := startHub(t)
	a, b := newTestPeer(), newTestPeer()
	join(t, h, a)
	join(t, h, b)
	settle(t, h)
	drain(a, b)

	require.NoError(t, h.Relay(SessionID(99), "late"))
	assert.Equal(t, "late", a.next(t))
	assert.Equal(t, "late", b.next(t))
}

func TestHubLeaveRemovesAndNotifiesRemaining(t *testing.T) {
	h := startHub(t)
	a, b := newTestPeer(), newTestPeer()
	idA := join(t, h, a)
	idB := join(t, h, b)
	assert.Equal(t, []SessionID{idA, idB}, settle(t, h))
	drain(a, b)

	require.NoError(t, h.Leave(idA))
	assert.Equal(t, []SessionID{idB}, settle(t, h))
	assert.Equal(t, DisconnectNotice, b.next(t))
	assert.Empty(t, a.inbox)
}

func TestHubLeaveUnknownIDIsNoop(t *testing.T) {
	h := startHub(t)
	a := newTestPeer()
	idA := join(t, h, a)
	settle(t, h)
	drain(a)

	require.NoError(t, h.Leave(SessionID(42)))
	require.NoError(t, h.Leave(idA))
	require.NoError(t, h.Leave(idA))

	assert.Empty(t, settle(t, h))
	assert.Empty(t, a.inbox)
}

func TestHubUnicast(t *testing.T) {
	h := startHub(t)
	a, b := newTestPeer(), newTestPeer()
	join(t, h, a)
	idB := join(t, h, b)
	settle(t, h)
	drain(a, b)

	require.NoError(t, h.Unicast(idB, "psst"))
	require.NoError(t, h.Unicast(SessionID(77), "nobody"))
	assert.Equal(t, "psst", b.next(t))
	settle(t, h)
	assert.Empty(t, a.inbox)
	assert.Empty(t, b.inbox)
}

func TestHubConcurrentJoinsGetDistinctIDs(t *testing.T) {
	const n = 64
	h := startHub(t)

	ids := make(chan SessionID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := h.Join(context.Background(), newTestPeer().recipient())
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[SessionID]struct{}, n)
	for id := range ids {
		assert.NotZero(t, id)
		assert.LessOrEqual(t, uint64(id), uint64(n))
		_, dup := seen[id]
		assert.False(t, dup, "id %d returned twice", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Len(t, settle(t, h), n)
}

func TestHubKeepsUnreachableRecipientRegistered(t *testing.T) {
	h := startHub(t)
	gone, full, live := newTestPeer(), &testPeer{inbox: make(chan string), done: make(chan struct{})}, newTestPeer()

	idGone := join(t, h, gone)
	close(gone.done)
	idFull := join(t, h, full)
	idLive := join(t, h, live)
	drain(live)

	require.NoError(t, h.Relay(idLive, "into the void"))
	assert.Equal(t, []SessionID{idGone, idFull, idLive}, settle(t, h))

	require.NoError(t, h.Leave(idGone))
	assert.Equal(t, []SessionID{idFull, idLive}, settle(t, h))
}

func TestHubBroadcastScenario(t *testing.T) {
	h := startHub(t)
	a, b := newTestPeer(), newTestPeer()
	idA := join(t, h, a)
	idB := join(t, h, b)
	settle(t, h)
	drain(a, b)

	require.NoError(t, h.Relay(idA, "hello"))
	assert.Equal(t, "hello", b.next(t))

	require.NoError(t, h.Leave(idA))
	assert.Equal(t, DisconnectNotice, b.next(t))

	require.NoError(t, h.Relay(idB, "hi"))
	settle(t, h)
	assert.Empty(t, a.inbox)
	assert.Empty(t, b.inbox)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []HubEvent
}

func (o *recordingObserver) Observe(ev HubEvent) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) snapshot() []HubEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]HubEvent(nil), o.events...)
}

func TestHubReportsEventsToObserver(t *testing.T) {
	obs := &recordingObserver{}
	h := startHub(t, WithObserver(obs))
	a, b := newTestPeer(), newTestPeer()

	idA := join(t, h, a)
	idB := join(t, h, b)
	require.NoError(t, h.Relay(idB, "yo"))
	require.NoError(t, h.Leave(idA))
	require.NoError(t, h.Leave(SessionID(1234)))
	settle(t, h)

	events := obs.snapshot()
	require.Len(t, events, 4)
	assert.Equal(t, HubEvent{Kind: EventJoin, Session: idA, Connections: 1, At: events[0].At}, events[0])
	assert.Equal(t, HubEvent{Kind: EventJoin, Session: idB, Connections: 2, At: events[1].At}, events[1])
	assert.Equal(t, HubEvent{Kind: EventRelay, Session: idB, Content: "yo", Connections: 2, At: events[2].At}, events[2])
	assert.Equal(t, HubEvent{Kind: EventLeave, Session: idA, Connections: 1, At: events[3].At}, events[3])
}

func TestHubUnavailableOnceStopped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	go h.Run(ctx)
	cancel()
	<-h.done

	_, err := h.Join(context.Background(), newTestPeer().recipient())
	assert.ErrorIs(t, err, ErrHubUnavailable)
	assert.ErrorIs(t, h.Leave(1), ErrHubUnavailable)
	assert.ErrorIs(t, h.Relay(1, "x"), ErrHubUnavailable)
	_, err = h.Count(context.Background())
	assert.ErrorIs(t, err, ErrHubUnavailable)
}

func TestHubJoinAbandonedByCallerIsUndone(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Join(ctx, newTestPeer().recipient())
	require.ErrorIs(t, err, context.Canceled)

	runCtx, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)
	go h.Run(runCtx)

	require.Eventually(t, func() bool {
		n, err := h.Count(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecipientZeroValueDeliversNothing(t *testing.T) {
	var r Recipient
	assert.False(t, r.Deliver("x"))
}

func drain(peers ...*testPeer) {
	for _, p := range peers {
		for len(p.inbox) > 0 {
			<-p.inbox
		}
	}
}
