// Package http is the REST surface of the reference backend. Every reply is
// HTTP 200 carrying the {code,message,data} envelope; data is itself a JSON
// string.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/protocol"
	httpmw "github.com/cwrk-planet/room-sync/internal/backend/transport/http/middleware"
	"github.com/cwrk-planet/room-sync/pkg/errs"
)

type RoomService interface {
	CreateRoom(ctx context.Context, creatorID int64, name, nickname string) (domain.Room, error)
	GetRoom(ctx context.Context, key domain.RoomKey) (domain.Room, error)
	Players(ctx context.Context, roomID int64) ([]domain.Player, error)
	Transfers(ctx context.Context, roomID, afterID int64) ([]domain.TransferRecord, error)
	Settlements(ctx context.Context, roomID int64) ([]domain.Settlement, error)
	JoinRoom(ctx context.Context, roomID, userID int64, nickname string) error
	TransferScore(ctx context.Context, roomID, fromUserID, toUserID, amount int64) (domain.TransferRecord, error)
	SettleRoom(ctx context.Context, roomID, userID int64) ([]domain.Settlement, error)
}

type Handler struct {
	rooms RoomService
}

func NewHandler(rooms RoomService) *Handler {
	return &Handler{rooms: rooms}
}

type joinResponse struct {
	RoomID   int64  `json:"room_id"`
	RoomCode string `json:"room_code"`
}

func writeEnvelope(w http.ResponseWriter, code int, message string, data any) {
	resp, err := protocol.NewResponse(code, message, data)
	if err != nil {
		resp = protocol.Response{Code: http.StatusInternalServerError, Message: "encode response"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func ok(w http.ResponseWriter, message string, data any) {
	writeEnvelope(w, protocol.CodeOK, message, data)
}

// fail maps a service error onto an envelope code and message.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	code, msg := classify(err)
	if code >= http.StatusInternalServerError {
		httpmw.L(r.Context()).Error("handler."+op, "err", err)
	}
	writeEnvelope(w, code, msg, nil)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, protocol.MsgRoomNotFound
	case errors.Is(err, domain.ErrRoomSettled):
		return http.StatusBadRequest, protocol.MsgRoomSettled
	case errors.Is(err, domain.ErrAlreadyJoined):
		return http.StatusConflict, protocol.MsgAlreadyMember
	case errors.Is(err, domain.ErrNotInRoom):
		return http.StatusForbidden, protocol.MsgNotInRoom
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	default:
		return errs.ToHTTP(err), "internal error"
	}
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Join(errs.ErrInvalidInput, errors.New("invalid json"))
	}
	return nil
}

func queryID(r *http.Request, name string, required bool) (int64, error) {
	s := strings.TrimSpace(r.URL.Query().Get(name))
	if s == "" {
		if required {
			return 0, errors.Join(errs.ErrInvalidInput, errors.New("missing "+name))
		}
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 || (required && n == 0) {
		return 0, errors.Join(errs.ErrInvalidInput, errors.New("invalid "+name))
	}
	return n, nil
}

// POST /api/v1/createRoom
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req protocol.CreateRoomRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "CreateRoom", err)
		return
	}
	room, err := h.rooms.CreateRoom(r.Context(), req.CreatorID, req.RoomName, req.Nickname)
	if err != nil {
		fail(w, r, "CreateRoom", err)
		return
	}
	ok(w, "room created", room)
}

// GET /api/v1/getRoom?room_id= | ?room_code=
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	var key domain.RoomKey
	id, err := queryID(r, protocol.QueryRoomID, false)
	if err != nil {
		fail(w, r, "GetRoom", err)
		return
	}
	if id > 0 {
		key = domain.ByID(id)
	} else if code := strings.TrimSpace(r.URL.Query().Get(protocol.QueryRoomCode)); code != "" {
		key = domain.ByCode(code)
	}

	room, err := h.rooms.GetRoom(r.Context(), key)
	if err != nil {
		fail(w, r, "GetRoom", err)
		return
	}
	ok(w, "ok", room)
}

// GET /api/v1/getRoomPlayers?room_id=
func (h *Handler) GetRoomPlayers(w http.ResponseWriter, r *http.Request) {
	roomID, err := queryID(r, protocol.QueryRoomID, true)
	if err != nil {
		fail(w, r, "GetRoomPlayers", err)
		return
	}
	players, err := h.rooms.Players(r.Context(), roomID)
	if err != nil {
		fail(w, r, "GetRoomPlayers", err)
		return
	}
	if players == nil {
		players = []domain.Player{}
	}
	ok(w, "ok", players)
}

// GET /api/v1/getRoomTransfers?room_id=&after_id=
func (h *Handler) GetRoomTransfers(w http.ResponseWriter, r *http.Request) {
	roomID, err := queryID(r, protocol.QueryRoomID, true)
	if err != nil {
		fail(w, r, "GetRoomTransfers", err)
		return
	}
	afterID, err := queryID(r, protocol.QueryAfterID, false)
	if err != nil {
		fail(w, r, "GetRoomTransfers", err)
		return
	}
	list, err := h.rooms.Transfers(r.Context(), roomID, afterID)
	if err != nil {
		fail(w, r, "GetRoomTransfers", err)
		return
	}
	if list == nil {
		list = []domain.TransferRecord{}
	}
	ok(w, "ok", list)
}

// GET /api/v1/getRoomSettlements?room_id=
func (h *Handler) GetRoomSettlements(w http.ResponseWriter, r *http.Request) {
	roomID, err := queryID(r, protocol.QueryRoomID, true)
	if err != nil {
		fail(w, r, "GetRoomSettlements", err)
		return
	}
	list, err := h.rooms.Settlements(r.Context(), roomID)
	if err != nil {
		fail(w, r, "GetRoomSettlements", err)
		return
	}
	if list == nil {
		list = []domain.Settlement{}
	}
	ok(w, "ok", list)
}

// POST /api/v1/joinRoom
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req protocol.JoinRoomRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "JoinRoom", err)
		return
	}
	room, err := h.rooms.GetRoom(r.Context(), domain.ByID(req.RoomID))
	if err != nil {
		fail(w, r, "JoinRoom", err)
		return
	}
	if room.IsSettled() {
		fail(w, r, "JoinRoom", domain.ErrRoomSettled)
		return
	}

	data := joinResponse{RoomID: room.ID, RoomCode: room.Code}
	err = h.rooms.JoinRoom(r.Context(), room.ID, req.UserID, req.Nickname)
	switch {
	case err == nil:
		ok(w, "joined", data)
	case errors.Is(err, domain.ErrAlreadyJoined):
		// repeated joins succeed
		ok(w, protocol.MsgAlreadyMember, data)
	default:
		fail(w, r, "JoinRoom", err)
	}
}

// POST /api/v1/transferScore
func (h *Handler) TransferScore(w http.ResponseWriter, r *http.Request) {
	var req protocol.TransferScoreRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "TransferScore", err)
		return
	}
	rec, err := h.rooms.TransferScore(r.Context(), req.RoomID, req.FromUserID, req.ToUserID, req.Amount)
	if err != nil {
		fail(w, r, "TransferScore", err)
		return
	}
	ok(w, "transferred", rec)
}

// POST /api/v1/settleRoom
func (h *Handler) SettleRoom(w http.ResponseWriter, r *http.Request) {
	var req protocol.SettleRoomRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, "SettleRoom", err)
		return
	}
	list, err := h.rooms.SettleRoom(r.Context(), req.RoomID, req.UserID)
	if err != nil {
		fail(w, r, "SettleRoom", err)
		return
	}
	if list == nil {
		list = []domain.Settlement{}
	}
	ok(w, "settled", list)
}
