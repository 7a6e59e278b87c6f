// Package sequence keeps the telemetry sequence number across restarts.
package sequence

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Modulus bounds the counter to [0, Modulus). T# sequence fields are three digits wide.
const Modulus = 999

// Counter is a rolling sequence number persisted to a single file.
// Not safe for concurrent use.
type Counter struct {
	path  string
	count int
	log   zerolog.Logger
}

// Load reads the last value from path. A missing, unreadable or corrupt file starts at 0.
func Load(path string, log zerolog.Logger) *Counter {
	c := &Counter{path: path, log: log}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to read sequence file, starting at 0")
		}
		return c
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 || n >= Modulus {
		log.Warn().Str("path", path).Str("content", strings.TrimSpace(string(data))).Msg("Corrupt sequence file, starting at 0")
		return c
	}

	c.count = n
	log.Debug().Str("path", path).Int("sequence", n).Msg("Sequence loaded")
	return c
}

// Current returns the last value handed out (or loaded).
func (c *Counter) Current() int {
	return c.count
}

// Next advances the counter, persists it and returns the new value.
// After Modulus-1 it wraps to 0. A failed write is logged and ignored.
func (c *Counter) Next() int {
	c.count = (c.count + 1) % Modulus
	c.persist()
	return c.count
}

func (c *Counter) persist() {
	if err := os.WriteFile(c.path, []byte(strconv.Itoa(c.count)+"\n"), 0644); err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("Failed to persist sequence")
	}
}
