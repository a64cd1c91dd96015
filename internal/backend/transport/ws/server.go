// Package ws serves the push channel: one websocket per viewer, grouped by
// room, carrying server events out and keep-alive pings in.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/protocol"
	"github.com/cwrk-planet/room-sync/pkg/logger"

	"github.com/gorilla/websocket"
)

type RoomLookup interface {
	GetRoom(ctx context.Context, key domain.RoomKey) (domain.Room, error)
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	rooms    RoomLookup
	log      *slog.Logger

	pingEvery time.Duration
}

func NewServer(hub *Hub, rooms RoomLookup, pingEvery time.Duration, log *slog.Logger) *Server {
	if pingEvery <= 0 {
		pingEvery = 30 * time.Second
	}
	return &Server{
		hub:   hub,
		rooms: rooms,
		log:   logger.Or(log).With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery: pingEvery,
	}
}

// WS endpoint: GET /ws?room_id=...&user_id=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	roomID, err := strconv.ParseInt(strings.TrimSpace(q.Get(protocol.QueryRoomID)), 10, 64)
	if err != nil || roomID <= 0 {
		http.Error(w, "invalid room_id", http.StatusBadRequest)
		return
	}
	uid, err := strconv.ParseInt(strings.TrimSpace(q.Get(protocol.QueryUserID)), 10, 64)
	if err != nil || uid <= 0 {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}
	if _, err := s.rooms.GetRoom(r.Context(), domain.ByID(roomID)); err != nil {
		http.Error(w, protocol.MsgRoomNotFound, http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, roomID, uid)
	log := logger.WithRoom(s.log, strconv.FormatInt(roomID, 10), uid)
	if prev := s.hub.Add(c); prev != nil {
		log.Info("ws replaced previous connection")
		_ = prev.Close()
	}
	log.Info("ws connected", "room_conns", s.hub.Count(roomID))

	go s.writeLoop(c)
	s.readLoop(c, log)

	s.hub.Remove(c)
	if err := c.Close(); err != nil {
		log.Debug("ws close failed", "err", err)
	}
	log.Info("ws disconnected")
}

func (s *Server) readLoop(c *wsConn, log *slog.Logger) {
	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws read ended", "err", err)
			}
			return
		}
		// any frame from the client counts as liveness
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))

		var msg protocol.PushMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case protocol.TypePing:
			_ = c.Send(protocol.PushMessage{Type: protocol.TypePong, RoomID: c.roomID, Timestamp: time.Now().Unix()})
		default:
			// ignore
		}
	}
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-c.closed:
			return
		}
	}
}

type wsConn struct {
	conn   *websocket.Conn
	roomID int64
	userID int64
	sendMu chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newWsConn(c *websocket.Conn, roomID, userID int64) *wsConn {
	return &wsConn{
		conn:   c,
		roomID: roomID,
		userID: userID,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg protocol.PushMessage) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) UserID() int64 { return c.userID }
func (c *wsConn) RoomID() int64 { return c.roomID }
