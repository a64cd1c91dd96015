package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/cwrk-planet/room-sync/internal/devicestore"
	"github.com/cwrk-planet/room-sync/internal/session"
)

func (a *app) identity(ctx context.Context) (devicestore.Identity, error) {
	id, err := a.device.Identity(ctx)
	if errors.Is(err, devicestore.ErrNotFound) {
		return devicestore.Identity{}, errors.New("no identity on this device, run `roomsync login` first")
	}
	return id, err
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "user id")
	nickname := fs.String("nickname", "", "display name")
	token := fs.String("token", "", "session token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 {
		return errors.New("login: -user must be positive")
	}

	return a.device.SaveIdentity(ctx, devicestore.Identity{UserID: *userID, Nickname: *nickname, Token: *token})
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "room name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := a.identity(ctx)
	if err != nil {
		return err
	}
	c, err := a.client(id)
	if err != nil {
		return err
	}

	room, err := c.CreateRoom(ctx, id.UserID, *name)
	if err != nil {
		return err
	}
	if err := a.device.SaveRecentRoom(ctx, id.UserID, devicestore.RecentRoom{RoomID: room.ID, Code: room.Code}); err != nil {
		a.log.Warn("remember room", "room_id", room.ID, "err", err)
	}

	fmt.Printf("room %d created, code %s\n", room.ID, room.Code)
	return nil
}

// entryFlags registers -room/-code/-scene on fs.
func entryFlags(fs *flag.FlagSet) func() session.Entry {
	room := fs.String("room", "", "room id")
	code := fs.String("code", "", "room code")
	scene := fs.String("scene", "cli", "entry scene")
	return func() session.Entry {
		return session.Entry{RoomID: *room, RoomCode: *code, Scene: *scene}
	}
}

// join enters the room named by entry, falling back to the remembered room.
func (a *app) join(ctx context.Context, entry session.Entry) (*session.Session, error) {
	id, err := a.identity(ctx)
	if err != nil {
		return nil, err
	}
	if entry.RoomID == "" && entry.RoomCode == "" {
		recent, err := a.device.RecentRoom(ctx, id.UserID)
		if err != nil && !errors.Is(err, devicestore.ErrNotFound) {
			return nil, err
		}
		if recent.RoomID > 0 {
			entry.RoomID = strconv.FormatInt(recent.RoomID, 10)
		}
	}

	s, err := a.open(id)
	if err != nil {
		return nil, err
	}
	res, err := s.Enter(ctx, entry, id.UserID)
	if err != nil {
		s.Leave()
		return nil, err
	}

	if res.Status != session.Entered {
		s.Leave()
		if res.Status == session.RoomSettled || res.Status == session.RoomNotFound {
			if err := a.device.ForgetRoom(ctx, id.UserID); err != nil {
				a.log.Warn("forget room", "err", err)
			}
		}
		return nil, fmt.Errorf("enter: %s %s", res.Status, res.Reason)
	}

	view := s.View()
	if err := a.device.SaveRecentRoom(ctx, id.UserID, devicestore.RecentRoom{RoomID: res.RoomID, Code: view.Room.Code}); err != nil {
		a.log.Warn("remember room", "room_id", res.RoomID, "err", err)
	}
	return s, nil
}

func (a *app) enter(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("enter", flag.ContinueOnError)
	entry := entryFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := a.join(ctx, entry())
	if err != nil {
		return err
	}
	defer s.Leave()

	views := make(chan session.View, 1)
	s.OnChange(func(v session.View) {
		select {
		case <-views:
		default:
		}
		select {
		case views <- v:
		default:
		}
	})
	s.OnError(func(err error) {
		fmt.Fprintf(os.Stderr, "! %v\n", err)
	})

	printView(s.View())
	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-views:
			printView(v)
		}
	}
}

func (a *app) transfer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ContinueOnError)
	entry := entryFlags(fs)
	to := fs.Int64("to", 0, "receiving user id")
	amount := fs.Int64("amount", 0, "points to hand over")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := a.join(ctx, entry())
	if err != nil {
		return err
	}
	defer s.Leave()

	rec, err := s.Transfer(ctx, *to, *amount)
	if err != nil {
		return err
	}
	fmt.Printf("transfer %d: %d -> %d, %d points\n", rec.ID, rec.FromUserID, rec.ToUserID, rec.Amount)
	return nil
}

func (a *app) settle(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("settle", flag.ContinueOnError)
	entry := entryFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := a.join(ctx, entry())
	if err != nil {
		return err
	}
	defer s.Leave()

	if _, err := s.Settle(ctx); err != nil {
		return err
	}
	printView(s.View())
	return nil
}

func (a *app) forget(ctx context.Context) error {
	id, err := a.identity(ctx)
	if err != nil {
		return err
	}
	return a.device.ForgetRoom(ctx, id.UserID)
}

func printView(v session.View) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	status := "active"
	if v.Terminal {
		status = "settled"
	}
	fmt.Fprintf(w, "\n== %s (%s) %s, push %s\n", v.Room.Name, v.Room.Code, status, v.Channel)

	for _, p := range v.Players {
		mark := ""
		if p.UserID == v.ViewerID {
			mark = "*"
		}
		score := p.CurrentScore
		if v.Terminal {
			score = p.FinalScore
		}
		fmt.Fprintf(w, "%s\t%s\t#%d\t%d\n", mark, p.Nickname, p.UserID, score)
	}

	if len(v.Settlements) > 0 {
		fmt.Fprintln(w, "-- settlement")
		for _, st := range v.Settlements {
			fmt.Fprintf(w, "\t#%d pays #%d\t\t%d\n", st.FromUserID, st.ToUserID, st.Amount)
		}
	}

	fmt.Fprintln(w, "-- transfers")
	for _, t := range v.Transfers {
		fmt.Fprintf(w, "\t%s\t#%d -> #%d\t%+d\n", t.CreatedAt.Local().Format(time.TimeOnly), t.FromUserID, t.ToUserID, t.Signed)
	}
}
