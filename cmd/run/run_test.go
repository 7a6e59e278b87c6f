package run

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aprstar/internal/beacon"
)

// freeAddr returns a loopback address nothing is listening on.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// aprsServer accepts one login and forwards every following line to lines.
func aprsServer(t *testing.T) (string, <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	lines := make(chan string, 64)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		fmt.Fprint(conn, "# aprsc 2.1.14\r\n")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\r\n")
			if strings.HasPrefix(line, "user ") {
				fmt.Fprint(conn, "# logresp N0CALL-1 verified, server T2TEST\r\n")
				continue
			}
			select {
			case lines <- line:
			default:
			}
		}
	}()
	return ln.Addr().String(), lines
}

func writeConfig(t *testing.T, dir, server, metrics string) string {
	t.Helper()
	host, port, err := net.SplitHostPort(server)
	require.NoError(t, err)

	content := fmt.Sprintf(`[APRS]
  call      = "N0CALL-1"
  latitude  = 37.0
  longitude = -122.0
  sleep     = 3600

[beacon]
  server         = %q
  port           = %s
  sequence_file  = %q
  thermal_file   = %q
  loadavg_file   = %q
  meminfo_file   = %q
  log_level      = "error"
  metrics_listen = %q
`, host, port,
		filepath.Join(dir, "state", "aprstar", "sequence"),
		filepath.Join(dir, "temp"),
		filepath.Join(dir, "loadavg"),
		filepath.Join(dir, "meminfo"),
		metrics)

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func shortRetries(t *testing.T) {
	t.Helper()
	saved := retryDelay
	retryDelay = time.Millisecond
	t.Cleanup(func() { retryDelay = saved })
}

func TestStart_Unreachable(t *testing.T) {
	shortRetries(t)
	t.Setenv("NOTIFY_SOCKET", "")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, freeAddr(t), "")

	err := start(context.Background(), cfgPath, "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, beacon.ErrHostUnreachable)

	info, err := os.Stat(filepath.Join(dir, "state", "aprstar"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStart_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[beacon]\nport = 1\n"), 0644))

	err := start(context.Background(), path, "test")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, beacon.ErrHostUnreachable)
}

func TestStart_BeaconsUntilCancelled(t *testing.T) {
	shortRetries(t)
	t.Setenv("NOTIFY_SOCKET", "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "temp"), []byte("48312\n"), 0644))

	server, lines := aprsServer(t)
	metricsAddr := freeAddr(t)
	cfgPath := writeConfig(t, dir, server, metricsAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- start(ctx, cfgPath, "test") }()

	var data string
	for data == "" {
		select {
		case line := <-lines:
			if strings.Contains(line, ":T#") {
				data = line
			}
		case <-time.After(5 * time.Second):
			t.Fatal("no telemetry line received")
		}
	}
	assert.Equal(t, "N0CALL-1>APRS:T#001,48312,0,0,0,0,00000000", data)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + metricsAddr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), "aprstar_sequence 1")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	content, err := os.ReadFile(filepath.Join(dir, "state", "aprstar", "sequence"))
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(content))
}
