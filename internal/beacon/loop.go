// Package beacon runs the APRS-IS telemetry beacon: connect, announce the
// station and its telemetry metadata, then send one T# record per interval.
package beacon

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"aprstar/internal/metrics"
	"aprstar/internal/sensor"
	"aprstar/internal/sequence"
	"aprstar/internal/telemetry"
	"aprstar/pkg/config"
)

// HeaderEvery is the sequence stride of position/PARM/EQNS re-announcement.
// Headers go out on every sequence value with seq%HeaderEvery == 1.
const HeaderEvery = 10

// Sampler provides one telemetry sample per cycle.
type Sampler interface {
	Sample() sensor.Sample
}

// Loop is the beacon scheduler.
type Loop struct {
	cfg      config.Config
	conn     *Connector
	seq      *sequence.Counter
	sensors  Sampler
	hostname string
	metrics  *metrics.Collector
	log      zerolog.Logger

	// OnConnected runs once the session is up, e.g. to notify systemd.
	OnConnected func()

	now func() time.Time
}

// NewLoop wires the beacon components together.
func NewLoop(cfg config.Config, conn *Connector, seq *sequence.Counter, sensors Sampler, hostname string, m *metrics.Collector, log zerolog.Logger) *Loop {
	return &Loop{
		cfg:      cfg,
		conn:     conn,
		seq:      seq,
		sensors:  sensors,
		hostname: hostname,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// Run connects and beacons until ctx is cancelled. It returns nil on
// cancellation and an error wrapping ErrHostUnreachable when the gateway
// cannot be reached.
func (l *Loop) Run(ctx context.Context) error {
	session, err := l.conn.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			l.log.Info().Msg("Interrupted while connecting")
			return nil
		}
		return err
	}
	defer session.Close()
	// Closing the session unblocks a send stuck on a stalled server.
	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()

	if l.OnConnected != nil {
		l.OnConnected()
	}

	l.log.Info().
		Str("call", l.cfg.Callsign).
		Float64("latitude", l.cfg.Latitude).
		Float64("longitude", l.cfg.Longitude).
		Dur("interval", l.cfg.ReportInterval).
		Int("sequence", l.seq.Current()).
		Msg("Beacon started")

	first := true
	for ctx.Err() == nil {
		l.cycle(session, first)
		first = false

		timer := time.NewTimer(l.cfg.ReportInterval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}

	l.log.Info().Msg("Beacon stopped")
	return nil
}

// cycle advances the sequence, announces when due and sends the data line.
// The first cycle after connecting always announces.
func (l *Loop) cycle(s Session, first bool) int {
	seq := l.seq.Next()
	if first || seq%HeaderEvery == 1 {
		l.announce(s)
	}

	sample := l.sensors.Sample()
	l.metrics.Observe(seq, sample)
	l.conn.Send(s, "data", telemetry.Data(l.cfg, seq, sample))
	return seq
}

// announce sends position, PARM and EQNS. Each send fails independently.
func (l *Loop) announce(s Session) {
	l.conn.Send(s, "position", telemetry.Position(l.cfg, l.hostname, l.now()))
	l.conn.Send(s, "parm", telemetry.Parm(l.cfg))
	l.conn.Send(s, "eqns", telemetry.Eqns(l.cfg))
}
