package beacon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"aprstar/internal/metrics"
)

const (
	// DefaultAttempts is how many times Connect dials before giving up.
	DefaultAttempts = 5
	// DefaultRetryDelay is the pause after each failed dial.
	DefaultRetryDelay = 10 * time.Second
)

// ErrHostUnreachable is returned by Connect once every attempt has failed.
var ErrHostUnreachable = errors.New("host unreachable")

// Session is an established, authenticated gateway connection.
type Session interface {
	SendLine(line string) error
	Close() error
}

// DialFunc opens one Session.
type DialFunc func(ctx context.Context) (Session, error)

// Connector opens the gateway session with bounded retry and sends lines on it.
type Connector struct {
	dial     DialFunc
	addr     string
	attempts int
	delay    time.Duration
	metrics  *metrics.Collector
	log      zerolog.Logger

	retries int // waits taken by the last Connect
}

// NewConnector returns a Connector using DefaultAttempts and DefaultRetryDelay.
// addr is only used for logging.
func NewConnector(dial DialFunc, addr string, m *metrics.Collector, log zerolog.Logger) *Connector {
	return &Connector{
		dial:     dial,
		addr:     addr,
		attempts: DefaultAttempts,
		delay:    DefaultRetryDelay,
		metrics:  m,
		log:      log,
	}
}

// SetRetryDelay overrides the pause between failed dials.
func (c *Connector) SetRetryDelay(d time.Duration) {
	c.delay = d
}

// Connect dials until a session is established or the attempts run out.
// Exhaustion yields an error wrapping ErrHostUnreachable; cancellation of ctx
// yields ctx.Err() without waiting out the retry delay.
func (c *Connector) Connect(ctx context.Context) (Session, error) {
	attempt := 0
	c.retries = 0

	op := func() (Session, error) {
		attempt++
		c.metrics.ConnectAttempt()
		c.log.Info().Str("server", c.addr).Int("attempt", attempt).Msg("Connecting")

		s, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			c.log.Warn().Err(err).
				Str("server", c.addr).
				Int("attempt", attempt).
				Int("max_attempts", c.attempts).
				Msg("Connection attempt failed")
			return nil, err
		}
		return s, nil
	}

	notify := func(err error, wait time.Duration) {
		c.retries++
		c.log.Info().Dur("wait", wait).Msg("Retrying connection")
	}

	s, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.delay)),
		backoff.WithMaxTries(uint(c.attempts)),
		backoff.WithMaxElapsedTime(0), // bounded by attempts only
		backoff.WithNotify(notify),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrHostUnreachable, c.addr, attempt, err)
	}

	c.log.Info().Str("server", c.addr).Int("attempts", attempt).Msg("Connected")
	return s, nil
}

// Send writes one line. A failure is logged and reported as false; it never
// ends the beacon and does not trigger a reconnect.
func (c *Connector) Send(s Session, kind, line string) bool {
	err := s.SendLine(line)
	c.metrics.LineSent(kind, err)
	if err != nil {
		c.log.Warn().Err(err).Str("kind", kind).Str("line", line).Msg("Failed to send line")
		return false
	}
	c.log.Info().Str("kind", kind).Msg(line)
	return true
}
