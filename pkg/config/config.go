// Package config provides TOML configuration loading for aprstar.
package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"aprstar/internal/aprsis"
)

// ErrConfig marks a config file that exists but cannot be used.
var ErrConfig = errors.New("unusable config")

const (
	DefaultCallsign       = "N0CALL"
	DefaultSymbol         = 'n'
	DefaultSymbolTable    = '/'
	DefaultReportInterval = 600 * time.Second
	DefaultServer         = "rotate.aprs2.net"
	DefaultComment        = "aprstar"
	DefaultSequenceFile   = "/var/lib/aprstar/sequence"
	DefaultThermalFile    = "/sys/class/thermal/thermal_zone0/temp"
	DefaultLoadAvgFile    = "/proc/loadavg"
	DefaultMemInfoFile    = "/proc/meminfo"
)

// LocateFunc estimates the station position when none is configured.
type LocateFunc func(ctx context.Context) (lat, lon float64, err error)

// Config is the resolved runtime configuration. It is built once by Resolve
// and passed by value afterwards.
type Config struct {
	Callsign       string
	Passcode       string
	Latitude       float64
	Longitude      float64
	Symbol         byte
	SymbolTable    byte
	ReportInterval time.Duration

	Server        string
	Port          int
	Comment       string
	SequenceFile  string
	ThermalFile   string
	LoadAvgFile   string
	MemInfoFile   string
	LogLevel      string
	LogFile       string
	MetricsListen string
}

// Addr returns the APRS-IS server address in host:port form.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server, strconv.Itoa(c.Port))
}

// file mirrors the on-disk layout.
type file struct {
	APRS   *aprsSection  `toml:"APRS"`
	Beacon beaconSection `toml:"beacon"`
}

type aprsSection struct {
	Call        string `toml:"call"`
	Passcode    string `toml:"passcode"`
	Latitude    any    `toml:"latitude"`
	Longitude   any    `toml:"longitude"`
	Sleep       any    `toml:"sleep"`
	Symbol      string `toml:"symbol"`
	SymbolTable string `toml:"symbol_table"`
}

type beaconSection struct {
	Server        string `toml:"server"`
	Port          int    `toml:"port"`
	Comment       string `toml:"comment"`
	SequenceFile  string `toml:"sequence_file"`
	ThermalFile   string `toml:"thermal_file"`
	LoadAvgFile   string `toml:"loadavg_file"`
	MemInfoFile   string `toml:"meminfo_file"`
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
	MetricsListen string `toml:"metrics_listen"`
}

// Load reads the config file at path and resolves it. A missing file is not
// an error: the built-in defaults are used.
func Load(ctx context.Context, path string, locate LocateFunc, log zerolog.Logger) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", path).Msg("Config file not found, using defaults")
		return Resolve(ctx, nil, locate, log)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading %s: %v", ErrConfig, path, err)
	}

	log.Info().Str("path", path).Msg("Reading config file")
	cfg, err := Resolve(ctx, data, locate, log)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve builds a Config from the file contents. nil data means no file.
// Defaults are seeded first and overridden by file values; individually
// invalid values fall back to their default with a warning.
func Resolve(ctx context.Context, data []byte, locate LocateFunc, log zerolog.Logger) (Config, error) {
	cfg := defaults()

	if data != nil {
		var f file
		if err := toml.Unmarshal(data, &f); err != nil {
			return Config{}, fmt.Errorf("%w: parsing: %v", ErrConfig, err)
		}
		if f.APRS == nil {
			return Config{}, fmt.Errorf("%w: no [APRS] section configured", ErrConfig)
		}
		cfg.apply(f, log)
	}

	cfg.resolvePosition(ctx, locate, log)

	if cfg.Passcode == "" {
		log.Warn().Str("call", cfg.Callsign).Msg("Generating passcode")
		cfg.Passcode = aprsis.Passcode(cfg.Callsign)
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		Callsign:       DefaultCallsign,
		Symbol:         DefaultSymbol,
		SymbolTable:    DefaultSymbolTable,
		ReportInterval: DefaultReportInterval,
		Server:         DefaultServer,
		Port:           aprsis.DefaultPort,
		Comment:        DefaultComment,
		SequenceFile:   DefaultSequenceFile,
		ThermalFile:    DefaultThermalFile,
		LoadAvgFile:    DefaultLoadAvgFile,
		MemInfoFile:    DefaultMemInfoFile,
		LogLevel:       "info",
	}
}

func (cfg *Config) apply(f file, log zerolog.Logger) {
	a := f.APRS
	if call := strings.TrimSpace(a.Call); call != "" {
		cfg.Callsign = strings.ToUpper(call)
	}
	cfg.Passcode = strings.TrimSpace(a.Passcode)
	cfg.Latitude = coordinate("latitude", a.Latitude, log)
	cfg.Longitude = coordinate("longitude", a.Longitude, log)

	if a.Sleep != nil {
		raw := fmt.Sprint(a.Sleep)
		d, ok := ParseInterval(raw)
		if !ok {
			log.Warn().Str("sleep", raw).Dur("default", DefaultReportInterval).Msg("Invalid sleep value, using default")
		}
		cfg.ReportInterval = d
	}

	if a.Symbol != "" {
		if c, ok := symbolChar(a.Symbol); ok {
			cfg.Symbol = c
		} else {
			log.Warn().Str("symbol", a.Symbol).Msg("Symbol must be one character, using default")
		}
	}
	if a.SymbolTable != "" {
		if c, ok := symbolChar(a.SymbolTable); ok {
			cfg.SymbolTable = c
		} else {
			log.Warn().Str("symbol_table", a.SymbolTable).Msg("Symbol table must be one character, using default")
		}
	}

	b := f.Beacon
	if b.Server != "" {
		cfg.Server = b.Server
	}
	if b.Port > 0 {
		cfg.Port = b.Port
	}
	if b.Comment != "" {
		cfg.Comment = b.Comment
	}
	if b.SequenceFile != "" {
		cfg.SequenceFile = ExpandPath(b.SequenceFile)
	}
	if b.ThermalFile != "" {
		cfg.ThermalFile = b.ThermalFile
	}
	if b.LoadAvgFile != "" {
		cfg.LoadAvgFile = b.LoadAvgFile
	}
	if b.MemInfoFile != "" {
		cfg.MemInfoFile = b.MemInfoFile
	}
	if b.LogLevel != "" {
		cfg.LogLevel = b.LogLevel
	}
	cfg.LogFile = ExpandPath(b.LogFile)
	cfg.MetricsListen = b.MetricsListen
}

// resolvePosition replaces the configured coordinates with a lookup when
// either is exactly zero. Zero doubles as "unset", so a station really on the
// equator or the prime meridian is relocated too.
func (cfg *Config) resolvePosition(ctx context.Context, locate LocateFunc, log zerolog.Logger) {
	if cfg.Latitude != 0 && cfg.Longitude != 0 {
		return
	}
	if locate == nil {
		cfg.Latitude, cfg.Longitude = 0, 0
		return
	}

	lat, lon, err := locate(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Position lookup failed")
		lat, lon = 0, 0
	}
	log.Info().Float64("latitude", lat).Float64("longitude", lon).Msg("Position from IP lookup")
	cfg.Latitude, cfg.Longitude = lat, lon
}

// maxIntervalSeconds is the largest interval a time.Duration can hold.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// ParseInterval parses a report interval in whole seconds. Anything but a
// positive integer that fits a time.Duration yields DefaultReportInterval and
// ok=false.
func ParseInterval(s string) (d time.Duration, ok bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 || n > maxIntervalSeconds {
		return DefaultReportInterval, false
	}
	return time.Duration(n) * time.Second, true
}

// coordinate accepts TOML floats, integers and numeric strings. Anything
// else counts as unset.
func coordinate(key string, v any, log zerolog.Logger) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case int64:
		return float64(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err == nil {
			return f
		}
	}
	log.Warn().Str("key", key).Interface("value", v).Msg("Invalid coordinate, treating as unset")
	return 0
}

func symbolChar(s string) (byte, bool) {
	if len(s) != 1 || s[0] < '!' || s[0] > '~' {
		return 0, false
	}
	return s[0], true
}

// ExpandPath expands tilde (~) to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return usr.HomeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}
