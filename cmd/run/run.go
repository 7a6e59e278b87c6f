package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus"

	"aprstar/internal/aprsis"
	"aprstar/internal/beacon"
	"aprstar/internal/geo"
	"aprstar/internal/metrics"
	"aprstar/internal/sensor"
	"aprstar/internal/sequence"
	"aprstar/pkg/config"
	"aprstar/pkg/logger"
)

// Software is the name sent in the APRS-IS login line.
const Software = "aprstar"

// retryDelay is the pause between failed connection attempts.
var retryDelay = beacon.DefaultRetryDelay

// Run starts the telemetry beacon and blocks until SIGINT/SIGTERM.
// A clean interrupt returns nil; an unreachable gateway returns an error
// wrapping beacon.ErrHostUnreachable.
func Run(configPath, version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return start(ctx, configPath, version)
}

func start(ctx context.Context, configPath, version string) error {
	boot := logger.Init("info", "")
	cfg, err := config.Load(ctx, configPath, geo.NewLocator().Lookup, boot)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.LogLevel, cfg.LogFile)

	m, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	if cfg.MetricsListen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsListen, log); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	seqDir := filepath.Dir(cfg.SequenceFile)
	if err := os.MkdirAll(seqDir, 0755); err != nil {
		log.Warn().Err(err).Str("dir", seqDir).Msg("Cannot create sequence directory")
	}
	seq := sequence.Load(cfg.SequenceFile, log)

	sensors := sensor.Reader{
		ThermalFile: cfg.ThermalFile,
		LoadAvgFile: cfg.LoadAvgFile,
		MemInfoFile: cfg.MemInfoFile,
	}

	login := aprsis.Login{
		Callsign: cfg.Callsign,
		Passcode: cfg.Passcode,
		Software: Software,
		Version:  version,
	}
	dial := func(ctx context.Context) (beacon.Session, error) {
		s, err := aprsis.Dial(ctx, cfg.Addr(), login, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	conn := beacon.NewConnector(dial, cfg.Addr(), m, log)
	conn.SetRetryDelay(retryDelay)
	loop := beacon.NewLoop(cfg, conn, seq, sensors, sensor.Hostname(ctx), m, log)
	loop.OnConnected = func() {
		if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			log.Debug().Err(err).Msg("sd_notify ready failed")
		}
	}

	err = loop.Run(ctx)
	if _, nerr := daemon.SdNotify(false, daemon.SdNotifyStopping); nerr != nil {
		log.Debug().Err(nerr).Msg("sd_notify stopping failed")
	}
	if err != nil {
		log.Error().Err(err).Str("server", cfg.Addr()).Msg("Giving up")
		return err
	}
	return nil
}
