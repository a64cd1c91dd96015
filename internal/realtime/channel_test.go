package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwrk-planet/room-sync/internal/protocol"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pushServer struct {
	srv    *httptest.Server
	dials  atomic.Int32
	mu     sync.Mutex
	params []string
}

func newPushServer(t *testing.T, serve func(n int32, conn *websocket.Conn)) *pushServer {
	t.Helper()
	s := &pushServer{}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.dials.Add(1)
		s.mu.Lock()
		s.params = append(s.params, r.URL.RawQuery)
		s.mu.Unlock()
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serve(n, conn)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *pushServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + protocol.PathPushChannel
}

func testOptions(url string) Options {
	return Options{
		URL:                  url,
		PingInterval:         time.Hour,
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectAttempts: 3,
		StableAfter:          time.Minute,
		HandshakeTimeout:     time.Second,
	}
}

func holdOpen(_ int32, conn *websocket.Conn) {
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestChannel_DeliversTypedEvents(t *testing.T) {
	srv := newPushServer(t, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"player_joined","room_id":7,"data":{"user_id":3,"nickname":"Wu"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"score_transfer","room_id":7,"data":"{\"transfer\":{\"id\":5}}"}`))
		holdOpen(0, conn)
	})

	ch := NewChannel(testOptions(srv.url()))
	got := make(chan Event, 4)
	ch.On(EventPlayerJoined, func(ev Event) { got <- ev })
	ch.On(EventScoreTransferred, func(ev Event) { got <- ev })

	require.NoError(t, ch.Connect(context.Background(), 7, 3))
	defer ch.Disconnect()
	assert.Equal(t, Connected, ch.State())

	first := <-got
	assert.Equal(t, int64(3), first.(PlayerJoined).UserID)
	second := <-got
	assert.Equal(t, int64(5), second.(ScoreTransferred).Transfer.ID)

	srv.mu.Lock()
	assert.Equal(t, "room_id=7&user_id=3", srv.params[0])
	srv.mu.Unlock()
}

func TestChannel_ConnectIsIdempotentPerRoom(t *testing.T) {
	srv := newPushServer(t, holdOpen)
	ch := NewChannel(testOptions(srv.url()))
	defer ch.Disconnect()

	require.NoError(t, ch.Connect(context.Background(), 1, 2))
	require.NoError(t, ch.Connect(context.Background(), 1, 2))
	assert.Equal(t, int32(1), srv.dials.Load())

	err := ch.Connect(context.Background(), 9, 2)
	assert.ErrorIs(t, err, ErrRoomMismatch)
	assert.Equal(t, int64(1), ch.RoomID())
}

func TestChannel_GivesUpAfterMaxAttempts(t *testing.T) {
	srv := newPushServer(t, func(_ int32, conn *websocket.Conn) { _ = conn.Close() })

	ch := NewChannel(testOptions(srv.url()))
	var errs []error
	var mu sync.Mutex
	done := make(chan struct{})
	ch.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
		close(done)
	})

	require.NoError(t, ch.Connect(context.Background(), 1, 1))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("channel never gave up")
	}
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(4), srv.dials.Load(), "initial dial plus three retries")
	assert.Equal(t, Disconnected, ch.State())
	mu.Lock()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMaxRetriesExceeded)
	mu.Unlock()
}

func TestChannel_DialFailureSchedulesRetry(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	srv.Close()

	opts := testOptions(url)
	opts.ReconnectInterval = time.Hour
	ch := NewChannel(opts)

	err := ch.Connect(context.Background(), 4, 4)
	require.ErrorIs(t, err, ErrConnectFailed)
	assert.Equal(t, Reconnecting, ch.State())
	assert.Equal(t, 1, ch.Attempts())

	ch.Disconnect()
	assert.Equal(t, Disconnected, ch.State())
	assert.Equal(t, 0, ch.Attempts())
}

func TestChannel_NormalCloseDoesNotReconnect(t *testing.T) {
	srv := newPushServer(t, func(_ int32, conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		time.Sleep(20 * time.Millisecond)
		_ = conn.Close()
	})

	ch := NewChannel(testOptions(srv.url()))
	require.NoError(t, ch.Connect(context.Background(), 1, 1))

	require.Eventually(t, func() bool { return ch.State() == Disconnected }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), srv.dials.Load())
}

func TestChannel_StableConnectionResetsAttempts(t *testing.T) {
	srv := newPushServer(t, func(_ int32, conn *websocket.Conn) {
		time.Sleep(40 * time.Millisecond)
		_ = conn.Close()
	})

	opts := testOptions(srv.url())
	opts.MaxReconnectAttempts = 1
	opts.StableAfter = 10 * time.Millisecond
	ch := NewChannel(opts)
	var gaveUp atomic.Bool
	ch.OnError(func(error) { gaveUp.Store(true) })

	require.NoError(t, ch.Connect(context.Background(), 1, 1))
	require.Eventually(t, func() bool { return srv.dials.Load() >= 4 }, 5*time.Second, 5*time.Millisecond)
	ch.Disconnect()

	assert.False(t, gaveUp.Load())
}

func TestChannel_NoHandlersAfterDisconnect(t *testing.T) {
	srv := newPushServer(t, func(_ int32, conn *websocket.Conn) {
		defer conn.Close()
		frame := []byte(`{"type":"player_left","room_id":1,"data":{"user_id":2}}`)
		for {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	})

	ch := NewChannel(testOptions(srv.url()))
	var seen atomic.Int64
	ch.OnAny(func(Event) { seen.Add(1) })

	require.NoError(t, ch.Connect(context.Background(), 1, 1))
	require.Eventually(t, func() bool { return seen.Load() > 5 }, 2*time.Second, time.Millisecond)

	ch.Disconnect()
	after := seen.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, seen.Load())

	ch.Disconnect()
	assert.Equal(t, Disconnected, ch.State())
}

func TestChannel_SendsPingFrames(t *testing.T) {
	pinged := make(chan string, 1)
	srv := newPushServer(t, func(_ int32, conn *websocket.Conn) {
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err == nil {
			pinged <- string(data)
		}
		holdOpen(0, conn)
	})

	opts := testOptions(srv.url())
	opts.PingInterval = 10 * time.Millisecond
	ch := NewChannel(opts)
	require.NoError(t, ch.Connect(context.Background(), 1, 1))
	defer ch.Disconnect()

	select {
	case frame := <-pinged:
		assert.JSONEq(t, `{"type":"ping"}`, frame)
	case <-time.After(2 * time.Second):
		t.Fatal("no ping received")
	}
}

func TestChannel_HandlerPanicIsContained(t *testing.T) {
	srv := newPushServer(t, func(_ int32, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"room_updated","data":{"status":2}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"room_updated","data":{"status":1}}`))
		holdOpen(0, conn)
	})

	ch := NewChannel(testOptions(srv.url()))
	var calls atomic.Int32
	ch.On(EventRoomUpdated, func(Event) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
	})
	require.NoError(t, ch.Connect(context.Background(), 1, 1))
	defer ch.Disconnect()

	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Connected, ch.State())
}
