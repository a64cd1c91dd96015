// Package api is the client for the scoring backend's REST surface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cwrk-planet/room-sync/internal/domain"
	"github.com/cwrk-planet/room-sync/internal/protocol"
	"github.com/cwrk-planet/room-sync/pkg/errs"
	"github.com/cwrk-planet/room-sync/pkg/logger"

	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

type Client interface {
	CreateRoom(ctx context.Context, creatorID int64, name string) (domain.Room, error)
	Room(ctx context.Context, key domain.RoomKey) (domain.Room, error)
	RoomPlayers(ctx context.Context, roomID int64) ([]domain.Player, error)
	// RoomTransfers returns the full history; RoomTransfersAfter only the
	// records with id > afterID, which must be positive.
	RoomTransfers(ctx context.Context, roomID int64) ([]domain.TransferRecord, error)
	RoomTransfersAfter(ctx context.Context, roomID, afterID int64) ([]domain.TransferRecord, error)
	RoomSettlements(ctx context.Context, roomID int64) ([]domain.Settlement, error)
	JoinRoom(ctx context.Context, userID, roomID int64) error
	TransferScore(ctx context.Context, roomID, fromUserID, toUserID, amount int64) (domain.TransferRecord, error)
	SettleRoom(ctx context.Context, roomID, userID int64) ([]domain.Settlement, error)
}

type Options struct {
	BaseURL string
	Timeout time.Duration
	// SessionToken is sent as a bearer token when set. It is opaque here.
	SessionToken string
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

type client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	token   string
	log     *slog.Logger
}

func New(opts Options) (Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("api client: empty base url")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api client: parse base url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}

	return &client{
		base:    base,
		http:    hc,
		timeout: opts.Timeout,
		token:   opts.SessionToken,
		log:     logger.Or(opts.Logger),
	}, nil
}

func (c *client) CreateRoom(ctx context.Context, creatorID int64, name string) (domain.Room, error) {
	const op = "createRoom"
	resp, err := c.do(ctx, op, http.MethodPost, protocol.PathCreateRoom, nil,
		protocol.CreateRoomRequest{CreatorID: creatorID, RoomName: name})
	if err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	if err := protocol.DecodeData(resp.Data, &room); err != nil {
		return domain.Room{}, fmt.Errorf("%s: %w: %w", op, domain.ErrParseFailed, err)
	}

	return room, nil
}

func (c *client) Room(ctx context.Context, key domain.RoomKey) (domain.Room, error) {
	const op = "getRoom"
	q := url.Values{}
	if id, ok := key.ID(); ok {
		q.Set(protocol.QueryRoomID, strconv.FormatInt(id, 10))
	} else if code, ok := key.Code(); ok {
		q.Set(protocol.QueryRoomCode, code)
	} else {
		return domain.Room{}, fmt.Errorf("%s: %w: empty room key", op, errs.ErrInvalidInput)
	}

	resp, err := c.do(ctx, op, http.MethodGet, protocol.PathGetRoom, q, nil)
	if err != nil {
		return domain.Room{}, err
	}
	var room domain.Room
	if err := protocol.DecodeData(resp.Data, &room); err != nil {
		return domain.Room{}, fmt.Errorf("%s: %w: %w", op, domain.ErrParseFailed, err)
	}
	if room.ID <= 0 {
		return domain.Room{}, fmt.Errorf("%s: %w: room without id", op, domain.ErrParseFailed)
	}

	return room, nil
}

func (c *client) RoomPlayers(ctx context.Context, roomID int64) ([]domain.Player, error) {
	const op = "getRoomPlayers"
	resp, err := c.do(ctx, op, http.MethodGet, protocol.PathGetRoomPlayers, roomQuery(roomID), nil)
	if err != nil {
		return nil, err
	}
	var players []domain.Player
	if err := protocol.DecodeData(resp.Data, &players); err != nil {
		if errors.Is(err, protocol.ErrEmptyData) {
			return []domain.Player{}, nil
		}
		return nil, fmt.Errorf("%s: %w: %w", op, domain.ErrParseFailed, err)
	}

	return players, nil
}

func (c *client) RoomTransfers(ctx context.Context, roomID int64) ([]domain.TransferRecord, error) {
	return c.transfers(ctx, roomID, roomQuery(roomID))
}

func (c *client) RoomTransfersAfter(ctx context.Context, roomID, afterID int64) ([]domain.TransferRecord, error) {
	if afterID <= 0 {
		return nil, fmt.Errorf("getRoomTransfers: %w: after id must be positive, got %d", errs.ErrInvalidInput, afterID)
	}
	q := roomQuery(roomID)
	q.Set(protocol.QueryAfterID, strconv.FormatInt(afterID, 10))

	return c.transfers(ctx, roomID, q)
}

// transfers substitutes an empty list for an unparseable payload: history is
// display data and a later sync repairs it.
func (c *client) transfers(ctx context.Context, roomID int64, q url.Values) ([]domain.TransferRecord, error) {
	const op = "getRoomTransfers"
	resp, err := c.do(ctx, op, http.MethodGet, protocol.PathGetTransfers, q, nil)
	if err != nil {
		return nil, err
	}
	var out []domain.TransferRecord
	if err := protocol.DecodeData(resp.Data, &out); err != nil {
		if !errors.Is(err, protocol.ErrEmptyData) {
			c.log.Warn("api: transfers payload unparseable, using empty list",
				"room_id", roomID, "err", err)
		}
		return []domain.TransferRecord{}, nil
	}

	return out, nil
}

func (c *client) RoomSettlements(ctx context.Context, roomID int64) ([]domain.Settlement, error) {
	const op = "getRoomSettlements"
	resp, err := c.do(ctx, op, http.MethodGet, protocol.PathGetSettlements, roomQuery(roomID), nil)
	if err != nil {
		return nil, err
	}

	return c.settlements(op, roomID, resp.Data), nil
}

// JoinRoom returns domain.ErrAlreadyJoined when the backend reports an
// existing membership, including the code 200 form of that answer.
func (c *client) JoinRoom(ctx context.Context, userID, roomID int64) error {
	resp, err := c.do(ctx, "joinRoom", http.MethodPost, protocol.PathJoinRoom, nil,
		protocol.JoinRoomRequest{UserID: userID, RoomID: roomID})
	if err != nil {
		return err
	}
	if alreadyMember(resp.Message) {
		return domain.ErrAlreadyJoined
	}

	return nil
}

func (c *client) TransferScore(ctx context.Context, roomID, fromUserID, toUserID, amount int64) (domain.TransferRecord, error) {
	const op = "transferScore"
	resp, err := c.do(ctx, op, http.MethodPost, protocol.PathTransferScore, nil, protocol.TransferScoreRequest{
		RoomID:     roomID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Amount:     amount,
	})
	if err != nil {
		return domain.TransferRecord{}, err
	}

	// older backends answer without a body
	var rec domain.TransferRecord
	if err := protocol.DecodeData(resp.Data, &rec); err != nil && !errors.Is(err, protocol.ErrEmptyData) {
		c.log.Debug("api: transfer response without record", "room_id", roomID, "err", err)
	}

	return rec, nil
}

func (c *client) SettleRoom(ctx context.Context, roomID, userID int64) ([]domain.Settlement, error) {
	const op = "settleRoom"
	resp, err := c.do(ctx, op, http.MethodPost, protocol.PathSettleRoom, nil,
		protocol.SettleRoomRequest{RoomID: roomID, UserID: userID})
	if err != nil {
		return nil, err
	}

	return c.settlements(op, roomID, resp.Data), nil
}

func (c *client) settlements(op string, roomID int64, data json.RawMessage) []domain.Settlement {
	var out []domain.Settlement
	if err := protocol.DecodeData(data, &out); err != nil {
		if !errors.Is(err, protocol.ErrEmptyData) {
			c.log.Warn("api: settlements payload unparseable, using empty list",
				"op", op, "room_id", roomID, "err", err)
		}
		return []domain.Settlement{}
	}
	return out
}

// do performs one call and returns the envelope when its code is 200.
// Transport problems wrap domain.ErrFetchFailed; envelope failures are *Error.
func (c *client) do(ctx context.Context, op, method, path string, q url.Values, body any) (protocol.Response, error) {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.base
	u.Path = c.base.Path + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return protocol.Response{}, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(rctx, method, u.String(), rdr)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("api call failed", "op", op, "err", err)
		return protocol.Response{}, fmt.Errorf("%s: %w: %w", op, domain.ErrFetchFailed, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%s: %w: read body: %w", op, domain.ErrFetchFailed, err)
	}

	var env protocol.Response
	if err := json.Unmarshal(raw, &env); err != nil || env.Code == 0 {
		if res.StatusCode != http.StatusOK {
			return protocol.Response{}, fmt.Errorf("%s: %w: %w: http %d", op, domain.ErrFetchFailed, errs.FromHTTP(res.StatusCode), res.StatusCode)
		}
		if err == nil {
			err = errors.New("missing code")
		}
		return protocol.Response{}, fmt.Errorf("%s: %w: envelope: %v", op, domain.ErrParseFailed, err)
	}

	c.log.Debug("api call",
		"op", op,
		"req_id", req.Header.Get(HeaderRequestID),
		"status", res.StatusCode,
		"code", env.Code,
		"dur_ms", time.Since(start).Milliseconds())

	if !env.OK() {
		return env, &Error{Op: op, Code: env.Code, Message: env.Message}
	}

	return env, nil
}

func roomQuery(roomID int64) url.Values {
	return url.Values{protocol.QueryRoomID: []string{strconv.FormatInt(roomID, 10)}}
}
