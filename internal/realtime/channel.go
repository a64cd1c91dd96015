// Package realtime keeps one push connection to a room open and turns its
// frames into typed events.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cwrk-planet/room-sync/internal/protocol"
	"github.com/cwrk-planet/room-sync/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	DefaultPingInterval         = 30 * time.Second
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 10 * time.Second

	writeWait = 5 * time.Second
)

var (
	ErrConnectFailed      = errors.New("push channel connect failed")
	ErrMaxRetriesExceeded = errors.New("push channel gave up reconnecting")
	ErrRoomMismatch       = errors.New("push channel is bound to another room")
	ErrNotConnected       = errors.New("push channel not connected")
	ErrClosed             = errors.New("push channel closed")
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

type Options struct {
	// URL of the push endpoint, e.g. wss://host/ws. room_id and user_id are
	// appended as query parameters.
	URL string

	PingInterval         time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	// StableAfter is how long a connection must stay open before the
	// attempt counter is reset. Defaults to PingInterval.
	StableAfter      time.Duration
	HandshakeTimeout time.Duration

	Header http.Header
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

func (o *Options) withDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = DefaultReconnectInterval
	}
	if o.MaxReconnectAttempts < 0 {
		o.MaxReconnectAttempts = 0
	} else if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.StableAfter <= 0 {
		o.StableAfter = o.PingInterval
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = o.HandshakeTimeout
		o.Dialer = &d
	}
}

type Handler func(Event)

// Channel is a reconnecting push connection bound to at most one room at a
// time. Handlers run on the read goroutine, one frame at a time; they must
// not call Disconnect.
type Channel struct {
	opts Options
	log  *slog.Logger

	mu         sync.Mutex
	state      State
	attempts   int
	gen        uint64
	roomID     int64
	userID     int64
	conn       *wsConn
	openedAt   time.Time
	timer      *time.Timer
	dialCancel context.CancelFunc

	dispatchMu sync.Mutex

	hmu      sync.RWMutex
	handlers map[EventType][]Handler
	any      []Handler
	onErr    []func(error)
	onState  []func(State, int)
}

func NewChannel(opts Options) *Channel {
	opts.withDefaults()

	return &Channel{
		opts:     opts,
		log:      logger.Or(opts.Logger).With("component", "realtime"),
		handlers: make(map[EventType][]Handler),
	}
}

func (c *Channel) On(t EventType, h Handler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[t] = append(c.handlers[t], h)
}

func (c *Channel) OnAny(h Handler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.any = append(c.any, h)
}

// OnError registers a listener for terminal channel errors, currently only
// ErrMaxRetriesExceeded.
func (c *Channel) OnError(f func(error)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.onErr = append(c.onErr, f)
}

func (c *Channel) OnStateChange(f func(State, int)) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.onState = append(c.onState, f)
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Channel) RoomID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Connect opens the channel for roomID. It is a no-op while the channel is
// already connected or connecting to the same room. A failed dial returns
// ErrConnectFailed and leaves a reconnect scheduled.
func (c *Channel) Connect(ctx context.Context, roomID, userID int64) error {
	c.mu.Lock()
	switch c.state {
	case Connected, Connecting, Reconnecting:
		if c.roomID != roomID || c.userID != userID {
			c.mu.Unlock()
			return fmt.Errorf("%w: bound to %d", ErrRoomMismatch, c.roomID)
		}
		if c.state != Reconnecting {
			c.mu.Unlock()
			return nil
		}
		c.stopTimerLocked()
	case Disconnected:
		c.attempts = 0
	}
	c.roomID, c.userID = roomID, userID
	gen := c.gen
	dctx := c.beginDialLocked(ctx)
	st, n := c.state, c.attempts
	c.mu.Unlock()
	c.emitState(st, n)

	return c.dial(dctx, gen)
}

// Disconnect closes the connection with a normal close code and cancels any
// pending reconnect. When it returns no handler is running and none will
// run for the old connection. Safe to call repeatedly.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	c.stopTimerLocked()
	conn := c.conn
	c.conn = nil
	c.openedAt = time.Time{}
	prev := c.state
	c.state = Disconnected
	c.attempts = 0
	c.mu.Unlock()

	if conn != nil {
		conn.closeNormal()
	}

	// wait out a handler that is mid-flight
	c.dispatchMu.Lock()
	c.dispatchMu.Unlock()

	if prev != Disconnected {
		c.log.Info("push channel disconnected", "prev", prev.String())
		c.emitState(Disconnected, 0)
	}
}

// Send writes v as one JSON text frame.
func (c *Channel) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	return conn.write(b)
}

func (c *Channel) beginDialLocked(ctx context.Context) context.Context {
	c.state = Connecting
	dctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	if c.dialCancel != nil {
		c.dialCancel()
	}
	c.dialCancel = cancel
	return dctx
}

func (c *Channel) dial(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	target, err := c.endpointLocked()
	c.mu.Unlock()
	if err != nil {
		c.drop(gen, false)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	raw, resp, err := c.opts.Dialer.DialContext(ctx, target, c.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.mu.Lock()
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if gen != c.gen {
		c.mu.Unlock()
		if raw != nil {
			_ = raw.Close()
		}
		return ErrClosed
	}
	if err != nil {
		room := c.roomID
		c.mu.Unlock()
		c.log.Warn("push channel dial failed", "room_id", room, "err", err)
		c.drop(gen, false)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	conn := newWsConn(raw)
	c.conn = conn
	c.openedAt = time.Now()
	c.state = Connected
	n := c.attempts
	room := c.roomID
	c.mu.Unlock()

	c.log.Info("push channel connected", "room_id", room, "attempt", n)
	c.emitState(Connected, n)

	go c.readLoop(gen, conn)
	go c.pingLoop(conn)

	return nil
}

func (c *Channel) endpointLocked() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set(protocol.QueryRoomID, strconv.FormatInt(c.roomID, 10))
	q.Set(protocol.QueryUserID, strconv.FormatInt(c.userID, 10))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// drop handles the loss of the connection belonging to gen: either it was
// closed cleanly and the channel stops, or a reconnect is scheduled until
// the attempt cap is hit.
func (c *Channel) drop(gen uint64, clean bool) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.close()
		c.conn = nil
	}
	if !c.openedAt.IsZero() && time.Since(c.openedAt) >= c.opts.StableAfter {
		c.attempts = 0
	}
	c.openedAt = time.Time{}
	room := c.roomID

	if clean {
		c.gen++
		c.state = Disconnected
		c.attempts = 0
		c.mu.Unlock()
		c.log.Info("push channel closed by server", "room_id", room)
		c.emitState(Disconnected, 0)
		return
	}

	if c.attempts >= c.opts.MaxReconnectAttempts {
		n := c.attempts
		c.gen++
		c.state = Disconnected
		c.mu.Unlock()
		c.log.Error("push channel gave up", "room_id", room, "attempts", n)
		c.emitState(Disconnected, n)
		c.emitError(fmt.Errorf("%w: room %d after %d attempts", ErrMaxRetriesExceeded, room, n))
		return
	}

	c.attempts++
	n := c.attempts
	c.state = Reconnecting
	c.timer = time.AfterFunc(c.opts.ReconnectInterval, func() { c.reconnect(gen) })
	c.mu.Unlock()

	c.log.Warn("push channel lost, reconnecting", "room_id", room, "attempt", n, "max", c.opts.MaxReconnectAttempts)
	c.emitState(Reconnecting, n)
}

func (c *Channel) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Reconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	dctx := c.beginDialLocked(context.Background())
	n := c.attempts
	c.mu.Unlock()
	c.emitState(Connecting, n)

	_ = c.dial(dctx, gen)
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) readLoop(gen uint64, conn *wsConn) {
	conn.raw.SetReadLimit(1 << 20)

	for {
		_, data, err := conn.raw.ReadMessage()
		if err != nil {
			if conn.isClosed() {
				return
			}
			clean := websocket.IsCloseError(err, websocket.CloseNormalClosure)
			c.log.Debug("push channel read ended", "clean", clean, "err", err)
			c.drop(gen, clean)
			return
		}
		c.dispatch(gen, data)
	}
}

func (c *Channel) pingLoop(conn *wsConn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	ping, _ := json.Marshal(protocol.PushMessage{Type: protocol.TypePing})
	for {
		select {
		case <-ticker.C:
			if err := conn.write(ping); err != nil {
				c.log.Debug("push channel ping failed", "err", err)
			}
		case <-conn.closed:
			return
		}
	}
}

func (c *Channel) dispatch(gen uint64, frame []byte) {
	ev, err := Decode(frame)
	if err != nil {
		c.log.Warn("push channel dropped frame", "err", err)
		return
	}
	if perr := ev.Info().PayloadErr; perr != nil {
		c.log.Debug("push channel: payload does not match type", "type", string(ev.Type()), "err", perr)
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	live := gen == c.gen
	c.mu.Unlock()
	if !live {
		return
	}

	c.hmu.RLock()
	hs := make([]Handler, 0, len(c.handlers[ev.Type()])+len(c.any))
	hs = append(hs, c.handlers[ev.Type()]...)
	hs = append(hs, c.any...)
	c.hmu.RUnlock()

	for _, h := range hs {
		c.safeCall(ev, h)
	}
}

func (c *Channel) safeCall(ev Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("push handler panicked", "type", string(ev.Type()), "panic", r)
		}
	}()
	h(ev)
}

func (c *Channel) emitState(s State, attempts int) {
	c.hmu.RLock()
	fs := append([]func(State, int){}, c.onState...)
	c.hmu.RUnlock()
	for _, f := range fs {
		f(s, attempts)
	}
}

func (c *Channel) emitError(err error) {
	c.hmu.RLock()
	fs := append([]func(error){}, c.onErr...)
	c.hmu.RUnlock()
	for _, f := range fs {
		f(err)
	}
}

type wsConn struct {
	raw    *websocket.Conn
	sendMu chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newWsConn(raw *websocket.Conn) *wsConn {
	return &wsConn{
		raw:    raw,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) write(b []byte) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.raw.SetWriteDeadline(time.Now().Add(writeWait))

	return c.raw.WriteMessage(websocket.TextMessage, b)
}

func (c *wsConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.raw.Close()
	})
}

func (c *wsConn) closeNormal() {
	c.once.Do(func() {
		close(c.closed)
		c.sendMu <- struct{}{}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.raw.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		<-c.sendMu
		_ = c.raw.Close()
	})
}
