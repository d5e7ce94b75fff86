package session

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Conn is the subset of a websocket connection that Serve needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Serve runs sess over conn until either side stops. Inbound frames are
// handled in arrival order; outbound frames are drained from out. The session
// is disconnected before Serve returns.
func Serve(ctx context.Context, conn Conn, sess *Session, out *Outbox) error {
	defer sess.Disconnect()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer conn.Close()
		return out.Pump(ctx, conn)
	})

	g.Go(func() error {
		defer out.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			err = sess.HandleMessage(data)
			switch {
			case err == nil:
			case IsDropped(err):
				sess.logger.Debug("Dropped message", "userID", sess.id, "error", err)
			default:
				sess.logger.Warn("Failed to handle message", "userID", sess.id, "error", err)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
