// Package telemetry renders the APRS text lines the beacon transmits.
//
// All functions are pure: identical inputs give identical lines, with the
// position timestamp supplied by the caller.
package telemetry

import (
	"fmt"
	"math"
	"time"

	"aprstar/internal/sensor"
	"aprstar/pkg/config"
)

// Destination is the generic APRS tocall used for every packet.
const Destination = "APRS"

const (
	parmText = "PARM.Temp,Load,FreeMem"
	eqnsText = "EQNS.0,0.001,0,0,0.001,0,0,1,0"
)

// Position returns a timestamped position report:
//
//	N0CALL-1>APRS:@191230z3700.00N/12200.00Wnhost aprstar
func Position(cfg config.Config, hostname string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s>%s:@%02d%02d%02dz%s%c%s%c%s %s",
		cfg.Callsign, Destination,
		now.Day(), now.Hour(), now.Minute(),
		latitude(cfg.Latitude), cfg.SymbolTable,
		longitude(cfg.Longitude), cfg.Symbol,
		hostname, cfg.Comment,
	)
}

// Parm names the telemetry channels.
func Parm(cfg config.Config) string {
	return message(cfg, parmText)
}

// Eqns gives the per-channel scaling a*x^2 + b*x + c.
func Eqns(cfg config.Config) string {
	return message(cfg, eqnsText)
}

// Data returns the T# telemetry record. The two trailing analog channels and
// the digital bits are always zero.
func Data(cfg config.Config, seq int, s sensor.Sample) string {
	return fmt.Sprintf("%s>%s:T#%03d,%d,%d,%d,0,0,00000000",
		cfg.Callsign, Destination, seq, s.Temperature, s.Load15, s.FreeMemoryMB)
}

// message addresses text to the station itself, the convention receivers use
// to bind PARM/EQNS metadata to a callsign.
func message(cfg config.Config, text string) string {
	return fmt.Sprintf("%s>%s::%-9s:%s", cfg.Callsign, Destination, cfg.Callsign, text)
}

func latitude(deg float64) string {
	hemi := 'N'
	if deg < 0 {
		hemi = 'S'
	}
	d, m := degMin(deg)
	return fmt.Sprintf("%02d%05.2f%c", d, m, hemi)
}

func longitude(deg float64) string {
	hemi := 'E'
	if deg < 0 {
		hemi = 'W'
	}
	d, m := degMin(deg)
	return fmt.Sprintf("%03d%05.2f%c", d, m, hemi)
}

// degMin splits an angle into whole degrees and minutes rounded to hundredths,
// carrying so minutes never print as 60.00.
func degMin(deg float64) (int, float64) {
	hundredths := int(math.Round(math.Abs(deg) * 60 * 100))
	return hundredths / 6000, float64(hundredths%6000) / 100
}
