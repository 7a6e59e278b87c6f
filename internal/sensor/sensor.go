// Package sensor samples host health for the telemetry channels.
package sensor

import (
	"bufio"
	"context"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// Defaults reported when a metric cannot be read.
const (
	DefaultTemperature  = 20000
	DefaultLoad15       = 0
	DefaultFreeMemoryMB = 0
)

// Sample holds one reading of every telemetry channel. It is always fully
// populated; unreadable metrics carry their default.
type Sample struct {
	Temperature  int // raw thermal zone value, millidegrees Celsius
	Load15       int // 15 minute load average x1000
	FreeMemoryMB int
}

// Reader reads metrics from Linux pseudo-files.
type Reader struct {
	ThermalFile string
	LoadAvgFile string
	MemInfoFile string
}

// Sample reads all three metrics independently.
func (r Reader) Sample() Sample {
	return Sample{
		Temperature:  r.Temperature(),
		Load15:       r.Load15(),
		FreeMemoryMB: r.FreeMemoryMB(),
	}
}

// Temperature returns the first integer in the thermal zone file.
func (r Reader) Temperature() int {
	line, ok := firstLine(r.ThermalFile)
	if !ok {
		return DefaultTemperature
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return DefaultTemperature
	}
	return n
}

// Load15 returns the 15 minute load average from a /proc/loadavg style file, scaled by 1000.
func (r Reader) Load15() int {
	line, ok := firstLine(r.LoadAvgFile)
	if !ok {
		return DefaultLoad15
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return DefaultLoad15
	}
	load, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || load < 0 {
		return DefaultLoad15
	}
	return int(math.Round(load * 1000))
}

// FreeMemoryMB returns MemAvailable (or MemFree on old kernels) from a /proc/meminfo style file.
func (r Reader) FreeMemoryMB() int {
	f, err := os.Open(r.MemInfoFile)
	if err != nil {
		return DefaultFreeMemoryMB
	}
	defer f.Close()

	free := -1
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, kb, ok := memInfoLine(scanner.Text())
		if !ok {
			continue
		}
		switch key {
		case "MemAvailable":
			return kb / 1024
		case "MemFree":
			free = kb / 1024
		}
	}
	if free < 0 {
		return DefaultFreeMemoryMB
	}
	return free
}

// memInfoLine parses "MemFree:   123456 kB".
func memInfoLine(line string) (string, int, bool) {
	key, rest, found := strings.Cut(line, ":")
	if !found {
		return "", 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", 0, false
	}
	kb, err := strconv.Atoi(fields[0])
	if err != nil || kb < 0 {
		return "", 0, false
	}
	return strings.TrimSpace(key), kb, true
}

func firstLine(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return "", false
	}
	return scanner.Text(), true
}

// Hostname returns the host name reported in the position comment.
func Hostname(ctx context.Context) string {
	if info, err := host.InfoWithContext(ctx); err == nil && info.Hostname != "" {
		return info.Hostname
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "unknown"
}
