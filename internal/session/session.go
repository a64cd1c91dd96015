// Package session drives one user's view of one room: it locates the room,
// makes sure the user is a member, loads the room state and keeps it current
// from push events until the user leaves.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/ledger"
	"github.com/cwrk-planet/room-sync/internal/locator"
	"github.com/cwrk-planet/room-sync/internal/membership"
	"github.com/cwrk-planet/room-sync/internal/realtime"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

var (
	ErrClosed  = errors.New("session closed")
	ErrNotLive = errors.New("session not live")
)

type Phase int

const (
	Idle Phase = iota
	Locating
	JoinChecking
	Syncing
	Live
	TornDown
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Locating:
		return "locating"
	case JoinChecking:
		return "join_checking"
	case Syncing:
		return "syncing"
	case Live:
		return "live"
	case TornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

type EnterStatus int

const (
	Entered EnterStatus = iota + 1
	InvalidRoom
	RoomSettled
	RoomNotFound
	JoinFailed
)

func (s EnterStatus) String() string {
	switch s {
	case Entered:
		return "entered"
	case InvalidRoom:
		return "invalid_room"
	case RoomSettled:
		return "room_settled"
	case RoomNotFound:
		return "room_not_found"
	case JoinFailed:
		return "join_failed"
	default:
		return "unknown"
	}
}

// Entry is the raw navigation input of a room page.
type Entry struct {
	RoomID   string
	RoomCode string
	Scene    string
}

type EnterResult struct {
	Status     EnterStatus
	RoomID     int64
	Membership membership.Result
	// Reason is a human readable cause for InvalidRoom and JoinFailed.
	Reason string
}

// API is the subset of the backend client a session uses.
type API interface {
	membership.RoomAPI
	RoomTransfers(ctx context.Context, roomID int64) ([]domain.TransferRecord, error)
	RoomTransfersAfter(ctx context.Context, roomID, afterID int64) ([]domain.TransferRecord, error)
	RoomSettlements(ctx context.Context, roomID int64) ([]domain.Settlement, error)
	TransferScore(ctx context.Context, roomID, fromUserID, toUserID, amount int64) (domain.TransferRecord, error)
	SettleRoom(ctx context.Context, roomID, userID int64) ([]domain.Settlement, error)
}

// Channel is the push connection a session listens on.
type Channel interface {
	Connect(ctx context.Context, roomID, userID int64) error
	Disconnect()
	On(t realtime.EventType, h realtime.Handler)
	OnError(f func(error))
	OnStateChange(f func(realtime.State, int))
	State() realtime.State
}

type Options struct {
	API        API
	Channel    Channel
	LedgerSize int
	QueueSize  int
	Logger     *slog.Logger
}

type Session struct {
	api    API
	ch     Channel
	guard  *membership.Guard
	ledger *ledger.Cache
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan task

	enterMu   sync.Mutex
	leaveOnce sync.Once

	mu          sync.RWMutex
	phase       Phase
	userID      int64
	key         domain.RoomKey
	room        domain.Room
	players     []domain.Player
	settlements []domain.Settlement
	terminal    bool
	channelDown bool

	lmu      sync.RWMutex
	onChange []func(View)
	onError  []func(error)
}

func New(opts Options) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	log := logger.Or(opts.Logger).With("component", "session")
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		api:    opts.API,
		ch:     opts.Channel,
		guard:  membership.NewGuard(opts.API, log),
		ledger: ledger.New(opts.LedgerSize),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(chan task, opts.QueueSize),
	}
	s.subscribe()
	go s.run()

	return s
}

func (s *Session) OnChange(f func(View)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.onChange = append(s.onChange, f)
}

// OnError registers a listener for failures that happen off the caller's
// goroutine: background syncs and the push channel giving up.
func (s *Session) OnError(f func(error)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.onError = append(s.onError, f)
}

func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Enter takes the session from raw navigation input to a live room view.
// Terminal room states are reported through the result; the error is
// reserved for retryable failures, after which Enter may be called again.
func (s *Session) Enter(ctx context.Context, entry Entry, userID int64) (EnterResult, error) {
	s.enterMu.Lock()
	defer s.enterMu.Unlock()

	s.mu.Lock()
	switch s.phase {
	case TornDown:
		s.mu.Unlock()
		return EnterResult{}, ErrClosed
	case Live:
		res := EnterResult{Status: Entered, RoomID: s.room.ID, Membership: membership.AlreadyMember}
		s.mu.Unlock()
		return res, nil
	}
	s.phase = Locating
	s.userID = userID
	s.mu.Unlock()

	key, err := locator.Locate(locator.Input{RawID: entry.RoomID, RawCode: entry.RoomCode, RawScene: entry.Scene})
	if err != nil {
		s.setPhase(Idle)
		s.log.Info("session: invalid room entry", "err", err)
		return EnterResult{Status: InvalidRoom, Reason: err.Error()}, nil
	}

	s.setPhase(JoinChecking)
	out, err := s.guard.EnsureMember(ctx, key, userID)
	if err != nil {
		s.setPhase(Idle)
		return EnterResult{}, err
	}
	if out.RoomID > 0 {
		key = key.Upgrade(out.RoomID)
	}

	res := EnterResult{RoomID: out.RoomID, Membership: out.Result, Reason: out.Reason}
	switch out.Result {
	case membership.RoomSettled:
		res.Status = RoomSettled
	case membership.RoomNotFound:
		res.Status = RoomNotFound
	case membership.JoinFailed:
		res.Status = JoinFailed
	}
	if res.Status != 0 {
		s.setPhase(Idle)
		return res, nil
	}

	s.mu.Lock()
	s.key = key
	s.phase = Syncing
	s.mu.Unlock()

	if err := s.await(ctx, "initial sync", s.fullSync); err != nil {
		if s.Phase() != TornDown {
			s.setPhase(Idle)
		}
		return EnterResult{}, err
	}

	s.mu.Lock()
	if s.phase == TornDown {
		s.mu.Unlock()
		return EnterResult{}, ErrClosed
	}
	s.phase = Live
	s.mu.Unlock()

	if err := s.ch.Connect(ctx, out.RoomID, userID); err != nil {
		// the channel keeps retrying on its own
		s.log.Warn("session: push channel not connected", "room_id", out.RoomID, "err", err)
	}

	logger.WithRoom(s.log, key.String(), userID).Info("session: live", "membership", out.Result.String())
	s.notify()

	res.Status = Entered
	return res, nil
}

// Leave stops background work, closes the push channel and drops the cached
// room state. It is idempotent; a left session cannot be entered again.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		s.cancel()
		s.ch.Disconnect()

		s.mu.Lock()
		s.phase = TornDown
		s.room = domain.Room{}
		s.players = nil
		s.settlements = nil
		s.ledger.ReplaceAll(nil)
		key := s.key
		s.mu.Unlock()

		s.log.Info("session: left", "room", key.String())
	})
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	if s.phase != TornDown {
		s.phase = p
	}
	s.mu.Unlock()
}

func (s *Session) roomID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, _ := s.key.ID()
	return id
}

func (s *Session) opError(op string, err error) error {
	s.mu.RLock()
	key := s.key
	s.mu.RUnlock()

	var oe *domain.OpError
	if errors.As(err, &oe) {
		return err
	}
	return &domain.OpError{Op: op, Key: key, Err: err}
}

func (s *Session) emitError(err error) {
	s.lmu.RLock()
	fs := append([]func(error){}, s.onError...)
	s.lmu.RUnlock()
	for _, f := range fs {
		f(err)
	}
}

func (s *Session) notify() {
	if s.ctx.Err() != nil {
		return
	}
	s.lmu.RLock()
	fs := append([]func(View){}, s.onChange...)
	s.lmu.RUnlock()
	if len(fs) == 0 {
		return
	}
	v := s.View()
	for _, f := range fs {
		f(v)
	}
}

func (s *Session) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("session(%s, %s)", s.key, s.phase)
}
