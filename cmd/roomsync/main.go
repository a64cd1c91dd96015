// Command roomsync is a terminal client for a score room: it enters a room
// the way the room page does, prints the live view and relays actions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/room-sync/config"
	"github.com/cwrk-planet/room-sync/internal/api"
	"github.com/cwrk-planet/room-sync/internal/devicestore"
	"github.com/cwrk-planet/room-sync/internal/realtime"
	"github.com/cwrk-planet/room-sync/internal/session"
	"github.com/cwrk-planet/room-sync/pkg/logger"
)

const usage = `usage: roomsync <command> [flags]

commands:
  login     -user ID [-nickname NAME] [-token TOKEN]
  create    -name NAME
  enter     [-room ID | -code CODE] [-scene SCENE]   print the live view until interrupted
  transfer  -to USER_ID -amount N [-room ID | -code CODE]
  settle    [-room ID | -code CODE]
  forget    drop the remembered room
`

type app struct {
	cfg    *config.ClientConfig
	device *devicestore.Store
	log    *slog.Logger
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	lc := cfg.Logging.Logger()
	lc.Output = os.Stderr
	log := logger.Init(lc)

	device, err := devicestore.Open(cfg.Device.Path)
	if err != nil {
		log.Error("open device store", "path", cfg.Device.Path, "err", err)
		os.Exit(1)
	}
	defer device.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, device: device, log: log}
	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "roomsync: %v\n", err)
		device.Close()
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "create":
		return a.create(ctx, args)
	case "enter":
		return a.enter(ctx, args)
	case "transfer":
		return a.transfer(ctx, args)
	case "settle":
		return a.settle(ctx, args)
	case "forget":
		return a.forget(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) client(id devicestore.Identity) (api.Client, error) {
	return api.New(api.Options{
		BaseURL:      a.cfg.API.BaseURL,
		Timeout:      a.cfg.API.Timeout,
		SessionToken: id.Token,
		Logger:       a.log,
	})
}

// open builds a session over a fresh client and push channel.
func (a *app) open(id devicestore.Identity) (*session.Session, error) {
	c, err := a.client(id)
	if err != nil {
		return nil, err
	}
	ch := realtime.NewChannel(realtime.Options{
		URL:                  a.cfg.Realtime.URL,
		PingInterval:         a.cfg.Realtime.PingInterval,
		ReconnectInterval:    a.cfg.Realtime.ReconnectInterval,
		MaxReconnectAttempts: a.cfg.Realtime.MaxReconnectAttempts,
		Logger:               a.log,
	})

	return session.New(session.Options{
		API:        c,
		Channel:    ch,
		LedgerSize: a.cfg.Ledger.MaxSize,
		Logger:     a.log,
	}), nil
}
