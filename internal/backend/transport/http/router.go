package http

import (
	"net/http"
	"time"

	"github.com/cwrk-planet/room-sync/internal/protocol"
	httpmw "github.com/cwrk-planet/room-sync/internal/backend/transport/http/middleware"
	"github.com/cwrk-planet/room-sync/internal/backend/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

func NewRouter(h *Handler, wsServer *ws.Server, opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.WithRequestLoggerCtx)
	r.Use(httpmw.RequestLogger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// WS endpoint
	r.Get(protocol.PathPushChannel, wsServer.HandleWS)

	limiter := httpmw.NewIPLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	r.Group(func(pr chi.Router) {
		pr.Use(limiter.Middleware)
		pr.Use(middlewareChi.Timeout(opts.RequestTimeout))

		pr.Post(protocol.PathCreateRoom, h.CreateRoom)
		pr.Get(protocol.PathGetRoom, h.GetRoom)
		pr.Get(protocol.PathGetRoomPlayers, h.GetRoomPlayers)
		pr.Get(protocol.PathGetTransfers, h.GetRoomTransfers)
		pr.Get(protocol.PathGetSettlements, h.GetRoomSettlements)
		pr.Post(protocol.PathJoinRoom, h.JoinRoom)
		pr.Post(protocol.PathTransferScore, h.TransferScore)
		pr.Post(protocol.PathSettleRoom, h.SettleRoom)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
