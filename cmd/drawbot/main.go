// Command drawbot joins a drawing room and sketches random strokes. It is a
// smoke client for the server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/example/drawing-sync/domain/canvas"
	"github.com/example/drawing-sync/modules/syncclient"
)

type logObserver struct {
	syncclient.NopObserver
	logger *slog.Logger
}

func (o logObserver) OnInit(s syncclient.Snapshot) {
	o.logger.Info("joined room", "room", s.RoomID, "user", s.UserID, "color", s.Color, "operations", len(s.Operations))
}

func (o logObserver) OnUsers(users []domain.User) {
	o.logger.Info("members changed", "count", len(users))
}

func (o logObserver) OnStrokeCommitted(userID string, op domain.Operation, own bool) {
	o.logger.Debug("stroke committed", "user", userID, "points", len(op.Points), "own", own)
}

func (o logObserver) OnConnectionChange(connected bool) {
	o.logger.Info("connection changed", "connected", connected)
}

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addr := flag.String("addr", "127.0.0.1:3000", "server address")
	room := flag.String("room", "default", "room to join")
	name := flag.String("name", "drawbot", "display name")
	strokes := flag.Int("strokes", 10, "number of strokes to draw, 0 to draw until interrupted")
	points := flag.Int("points", 40, "points per stroke")
	interval := flag.Duration("interval", 10*time.Millisecond, "delay between points")
	flag.Parse()
	if *interval <= 0 {
		*interval = time.Millisecond
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	logger := slog.Default()

	client, err := syncclient.New(syncclient.Config{
		URL:      u.String(),
		RoomID:   *room,
		Name:     *name,
		Observer: logObserver{logger: logger},
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(ctx)
	})
	g.Go(func() error {
		defer stop()
		return draw(ctx, client, *strokes, *points, *interval, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("done", "operations", len(client.Operations()))
	return nil
}

func draw(ctx context.Context, client *syncclient.Client, strokes, points int, interval time.Duration, logger *slog.Logger) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for n := 0; strokes == 0 || n < strokes; n++ {
		for !client.Connected() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}

		style := domain.StrokeStyle{
			Color: client.Color(),
			Width: 2 + rand.Float64()*8,
			Tool:  domain.ToolBrush,
		}
		if style.Color == "" {
			style.Color = "#000000"
		}
		cx, cy := 100+rand.Float64()*600, 100+rand.Float64()*400
		radius := 20 + rand.Float64()*80

		if err := client.BeginStroke(style, circlePoint(cx, cy, radius, 0)); err != nil {
			logger.Warn("failed to start stroke", "err", err)
			continue
		}
		for i := 1; i < points; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			theta := 2 * math.Pi * float64(i) / float64(points-1)
			_ = client.AddPoint(circlePoint(cx, cy, radius, theta))
			_ = client.MoveCursor(cx/800, cy/600)
		}
		if err := client.EndStroke(); err != nil {
			logger.Warn("failed to end stroke", "err", err)
		}
	}

	// Give the last stroke time to come back committed.
	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
	}
	return nil
}

func circlePoint(cx, cy, r, theta float64) domain.Point {
	return domain.Point{X: cx + r*math.Cos(theta), Y: cy + r*math.Sin(theta)}
}
