package changefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Channel is the NOTIFY channel written by the medications and
// medication_logs row triggers.
const Channel = "medication_logs_changes"

// Listener holds a dedicated connection on LISTEN and republishes every
// notification into a Publisher. It reconnects with capped exponential
// backoff until its context ends.
type Listener struct {
	connString string
	channel    string
	pub        Publisher
	logger     zerolog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewListener(connString string, pub Publisher, logger zerolog.Logger) *Listener {
	return &Listener{
		connString: connString,
		channel:    Channel,
		pub:        pub,
		logger:     logger.With().Str("component", "changefeed").Logger(),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		err := l.listen(ctx, func() { backoff = l.minBackoff })
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("listener disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, l.maxBackoff)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

// listen runs one connection lifetime. connected is called once LISTEN succeeds.
func (l *Listener) listen(ctx context.Context, connected func()) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	connected()
	l.logger.Info().Str("channel", l.channel).Msg("listening for changes")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		ev, err := Decode([]byte(n.Payload))
		if err != nil {
			l.logger.Error().Err(err).Msg("dropping malformed notification")
			continue
		}
		l.pub.Publish(ev)
	}
}
