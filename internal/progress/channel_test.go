package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/purifier-console/internal/clock/fake"
)

var errConnClosed = errors.New("use of closed connection")

type fakeConn struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	err    error
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-c.done:
		return nil, c.err
	}
}

func (c *fakeConn) Close() error {
	c.drop(errConnClosed)
	return nil
}

// drop simulates the transport breaking underneath the reader.
func (c *fakeConn) drop(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

func (c *fakeConn) send(frame string) {
	c.frames <- []byte(frame)
}

type fakeDialer struct {
	mu       sync.Mutex
	attempts int
	failures int
	block    bool
	conns    []*fakeConn
	aborted  int
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.attempts++
	if d.block {
		d.mu.Unlock()
		<-ctx.Done()
		d.mu.Lock()
		d.aborted++
		d.mu.Unlock()
		return nil, ctx.Err()
	}
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *fakeDialer) Aborted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aborted
}

func (d *fakeDialer) Conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

type callbackLog struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	events      []Event
}

func (l *callbackLog) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connects, l.disconnects
}

func (l *callbackLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

type channelFixture struct {
	ch     *Channel
	dialer *fakeDialer
	clock  *fake.Clock
	calls  *callbackLog
}

func newChannelFixture(t *testing.T, dialer *fakeDialer) channelFixture {
	t.Helper()
	clk := fake.New(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	calls := &callbackLog{}
	ch, err := NewChannel(Config{
		URL:    "ws://manager.test/ws/progress",
		Dialer: dialer,
		Clock:  clk,
		OnConnect: func() {
			calls.mu.Lock()
			calls.connects++
			calls.mu.Unlock()
		},
		OnDisconnect: func(error) {
			calls.mu.Lock()
			calls.disconnects++
			calls.mu.Unlock()
		},
		OnEvent: func(evt Event) {
			calls.mu.Lock()
			calls.events = append(calls.events, evt)
			calls.mu.Unlock()
		},
	})
	require.NoError(t, err)
	t.Cleanup(ch.Disconnect)
	return channelFixture{ch: ch, dialer: dialer, clock: clk, calls: calls}
}

func (f channelFixture) waitConnected(t *testing.T) {
	t.Helper()
	require.Eventually(t, f.ch.Connected, time.Second, time.Millisecond)
}

func (f channelFixture) waitRetryScheduled(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.clock.Pending() == 1 && f.ch.State() == StateDisconnected
	}, time.Second, time.Millisecond)
}

func TestNewChannelRequiresURLAndDialer(t *testing.T) {
	t.Parallel()

	_, err := NewChannel(Config{Dialer: &fakeDialer{}})
	require.Error(t, err)
	_, err = NewChannel(Config{URL: "ws://x/ws/progress"})
	require.Error(t, err)

	ch, err := NewChannel(Config{URL: "ws://x/ws/progress", Dialer: &fakeDialer{}})
	require.NoError(t, err)
	require.Equal(t, DefaultRetryDelay, ch.cfg.RetryDelay)
	require.Equal(t, StateDisconnected, ch.State())
	require.Empty(t, ch.Snapshot())
}

func TestChannelLastWriteWins(t *testing.T) {
	t.Parallel()

	f := newChannelFixture(t, &fakeDialer{})
	f.ch.Connect()
	f.waitConnected(t)

	conn := f.dialer.Conn(0)
	conn.send(`{"episode_id":1,"progress":10,"stage":"download"}`)
	conn.send(`{"episode_id":1,"progress":55,"stage":"clean"}`)

	require.Eventually(t, func() bool { return len(f.calls.Events()) == 2 }, time.Second, time.Millisecond)
	got, ok := f.ch.Progress(1)
	require.True(t, ok)
	require.Equal(t, Event{EpisodeID: 1, Progress: 55, Stage: "clean"}, got)
	require.Len(t, f.ch.Snapshot(), 1)

	_, ok = f.ch.Progress(2)
	require.False(t, ok)
}

func TestChannelKeepsOneEntryPerEpisode(t *testing.T) {
	t.Parallel()

	f := newChannelFixture(t, &fakeDialer{})
	f.ch.Connect()
	f.waitConnected(t)

	conn := f.dialer.Conn(0)
	conn.send(`{"episode_id":1,"progress":10,"stage":"downloading"}`)
	conn.send(`{"episode_id":2,"progress":30,"stage":"downloaded"}`)
	conn.send(`{"episode_id":1,"progress":90,"stage":"uploading"}`)

	require.Eventually(t, func() bool { return len(f.calls.Events()) == 3 }, time.Second, time.Millisecond)
	snap := f.ch.Snapshot()
	require.Len(t, snap, 2)
	require.InDelta(t, 90, snap[1].Progress, 1e-9)
	require.Equal(t, StageDownloaded, snap[2].Stage)

	// Mutating the copy does not touch the channel.
	delete(snap, 1)
	_, ok := f.ch.Progress(1)
	require.True(t, ok)
}

func TestChannelConnectIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newChannelFixture(t, &fakeDialer{})
	f.ch.Connect()
	f.ch.Connect()
	f.waitConnected(t)
	f.ch.Connect()
	f.ch.Connect()

	require.Never(t, func() bool { return f.dialer.Attempts() != 1 }, 50*time.Millisecond, 5*time.Millisecond)
	connects, _ := f.calls.counts()
	require.Equal(t, 1, connects)
}

func TestChannelNoReconnectAfterDisconnect(t *testing.T) {
	t.Parallel()

	f := newChannelFixture(t, &fakeDialer{})
	f.ch.Connect()
	f.waitConnected(t)
	f.dialer.Conn(0).send(`{"episode_id":3,"progress":50,"stage":"processing"}`)
	require.Eventually(t, func() bool { return len(f.calls.Events()) == 1 }, time.Second, time.Millisecond)

	f.ch.Disconnect()
	require.Equal(t, StateDisconnected, f.ch.State())
	require.Empty(t, f.ch.Snapshot())
	require.Zero(t, f.clock.Pending())

	f.clock.Advance(10 * DefaultRetryDelay)
	require.Never(t, func() bool { return f.dialer.Attempts() != 1 }, 50*time.Millisecond, 5*time.Millisecond)

	_, disconnects := f.calls.counts()
	require.Zero(t, disconnects)

	f.ch.Disconnect()
	require.Equal(t, StateDisconnected, f.ch.State())
}

func TestChannelDisconnectCancelsPendingReconnect(t *testing.T) {
	t.Parallel()

	f := newChannelFixture(t, &fakeDialer{})
	f.ch.Connect()
	f.waitConnected(t)

	f.dialer.Conn(0).drop(errors.New("connection reset by peer"))
	f.waitRetryScheduled(t)

	f.ch.Disconnect()
	require.Zero(t, f.clock.Pending())
	f.clock.Advance(DefaultRetryDelay)
	require.Never(t, func() bool { return f.dialer.Attempts() != 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestChannelReconnectsOnceAfterFixedDelay(t *testing.T) {
	t.Parallel()

	f := newChannelFixture(t, &fakeDialer{})
	f.ch.Connect()
	f.waitConnected(t)
	f.dialer.Conn(0).send(`{"episode_id":9,"progress":30,"stage":"downloaded"}`)
	require.Eventually(t, func() bool { return len(f.calls.Events()) == 1 }, time.Second, time.Millisecond)

	f.dialer.Conn(0).drop(errors.New("going away"))
	f.waitRetryScheduled(t)
	_, disconnects := f.calls.counts()
	require.Equal(t, 1, disconnects)

	// Automatic reconnects keep the snapshot.
	_, ok := f.ch.Progress(9)
	require.True(t, ok)

	f.clock.Advance(2999 * time.Millisecond)
	require.Equal(t, 1, f.dialer.Attempts())
	require.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(time.Millisecond)
	f.waitConnected(t)
	require.Equal(t, 2, f.dialer.Attempts())
	require.Zero(t, f.clock.Pending())

	connects, _ := f.calls.counts()
	require.Equal(t, 2, connects)

	f.dialer.Conn(1).send(`{"episode_id":9,"progress":50,"stage":"processing"}`)
	require.Eventually(t, func() bool {
		evt, ok := f.ch.Progress(9)
		return ok && evt.Stage == StageProcessing
	}, time.Second, time.Millisecond)
}

func TestChannelDialFailureSchedulesRetry(t *testing.T) {
	t.Parallel()

	f := newChannelFixture(t, &fakeDialer{failures: 2})
	f.ch.Connect()
	f.waitRetryScheduled(t)
	require.Equal(t, 1, f.dialer.Attempts())

	f.clock.Advance(DefaultRetryDelay)
	require.Eventually(t, func() bool {
		return f.dialer.Attempts() == 2 && f.clock.Pending() == 1
	}, time.Second, time.Millisecond)

	f.clock.Advance(DefaultRetryDelay)
	f.waitConnected(t)
	require.Equal(t, 3, f.dialer.Attempts())

	_, disconnects := f.calls.counts()
	require.Equal(t, 2, disconnects)
}

func TestChannelMalformedFramesAreDiscarded(t *testing.T) {
	t.Parallel()

	f := newChannelFixture(t, &fakeDialer{})
	f.ch.Connect()
	f.waitConnected(t)

	conn := f.dialer.Conn(0)
	conn.send(`{"episode_id":1,"progress":10,"stage":"downloading"}`)
	for _, frame := range []string{
		`not json`,
		`{"episode_id":1}`,
		`{"episode_id":1,"progress":20}`,
		`{"progress":20,"stage":"processing"}`,
		`{"episode_id":1,"progress":120,"stage":"processing"}`,
		`{"episode_id":1,"progress":20,"stage":""}`,
		`[]`,
	} {
		conn.send(frame)
	}
	conn.send(`{"episode_id":2,"progress":90,"stage":"uploading"}`)

	require.Eventually(t, func() bool { return len(f.calls.Events()) == 2 }, time.Second, time.Millisecond)
	evt, ok := f.ch.Progress(1)
	require.True(t, ok)
	require.Equal(t, Event{EpisodeID: 1, Progress: 10, Stage: StageDownloading}, evt)
	require.Len(t, f.ch.Snapshot(), 2)
	require.True(t, f.ch.Connected())
	require.Equal(t, 1, f.dialer.Attempts())
	require.Zero(t, f.clock.Pending())
}

func TestChannelDisconnectAbortsHungDial(t *testing.T) {
	t.Parallel()

	f := newChannelFixture(t, &fakeDialer{block: true})
	f.ch.Connect()
	require.Eventually(t, func() bool { return f.dialer.Attempts() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, StateConnecting, f.ch.State())

	f.ch.Disconnect()
	require.Eventually(t, func() bool { return f.dialer.Aborted() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, StateDisconnected, f.ch.State())
	require.Zero(t, f.clock.Pending())

	_, disconnects := f.calls.counts()
	require.Zero(t, disconnects)
}

func TestChannelConnectAfterDisconnectResumes(t *testing.T) {
	t.Parallel()

	f := newChannelFixture(t, &fakeDialer{})
	f.ch.Connect()
	f.waitConnected(t)
	f.ch.Disconnect()

	f.ch.Connect()
	f.waitConnected(t)
	require.Equal(t, 2, f.dialer.Attempts())

	f.dialer.Conn(1).drop(errors.New("eof"))
	f.waitRetryScheduled(t)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "disconnected", StateDisconnected.String())
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "connected", StateConnected.String())
	require.Equal(t, "unknown", State(42).String())
}
