// Package aprsis implements the small slice of the APRS-IS client protocol
// aprstar needs: a passcode login followed by raw packet lines.
package aprsis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"
)

const (
	// DefaultPort is the APRS-IS user-defined filter port.
	DefaultPort = 14580

	handshakeTimeout = 30 * time.Second
	writeTimeout     = 30 * time.Second
)

var (
	// ErrLoginRejected is returned when the server does not verify the passcode.
	ErrLoginRejected = errors.New("login rejected")
	// ErrBadBanner is returned when the server does not greet like an APRS-IS server.
	ErrBadBanner = errors.New("unexpected server banner")
)

// Login holds the credentials and software identification sent at logon.
type Login struct {
	Callsign string
	Passcode string
	Software string
	Version  string
}

func (l Login) line() string {
	return fmt.Sprintf("user %s pass %s vers %s %s", l.Callsign, l.Passcode, l.Software, l.Version)
}

// Session is an authenticated APRS-IS connection.
type Session struct {
	conn net.Conn
	mu   sync.Mutex
	log  zerolog.Logger
}

// Dial connects to addr, honoring ALL_PROXY/NO_PROXY, and performs the login
// handshake. Cancelling ctx aborts the handshake at once.
func Dial(ctx context.Context, addr string, login Login, log zerolog.Logger) (*Session, error) {
	conn, err := proxy.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	// An expired deadline unblocks the pending banner/logresp read.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	s, err := handshake(conn, login, log)
	if !stop() {
		conn.Close()
		return nil, fmt.Errorf("logging in to %s: %w", addr, ctx.Err())
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func handshake(conn net.Conn, login Login, log zerolog.Logger) (*Session, error) {
	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, fmt.Errorf("setting handshake deadline: %w", err)
	}

	r := bufio.NewReader(conn)
	banner, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading banner: %w", err)
	}
	banner = strings.TrimSpace(banner)
	if !strings.HasPrefix(banner, "#") {
		return nil, fmt.Errorf("%w: %q", ErrBadBanner, banner)
	}
	log.Debug().Str("banner", banner).Msg("Server banner")

	if _, err := io.WriteString(conn, login.line()+"\r\n"); err != nil {
		return nil, fmt.Errorf("sending login: %w", err)
	}

	// # logresp N0CALL verified, server T2TEST
	resp, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading login response: %w", err)
	}
	resp = strings.TrimSpace(resp)
	fields := strings.Fields(resp)
	if len(fields) < 4 || fields[1] != "logresp" {
		return nil, fmt.Errorf("%w: %q", ErrLoginRejected, resp)
	}
	if !strings.EqualFold(fields[2], login.Callsign) {
		return nil, fmt.Errorf("%w: server answered for %s", ErrLoginRejected, fields[2])
	}
	if strings.TrimSuffix(fields[3], ",") != "verified" && login.Passcode != "-1" {
		return nil, fmt.Errorf("%w: %q", ErrLoginRejected, resp)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("clearing handshake deadline: %w", err)
	}

	log.Info().Str("server", conn.RemoteAddr().String()).Str("logresp", resp).Msg("Logged in")

	s := &Session{conn: conn, log: log}
	go s.drain(r)
	return s, nil
}

// drain discards server keepalives and filter traffic so the receive window never fills.
func (s *Session) drain(r *bufio.Reader) {
	n, err := io.Copy(io.Discard, r)
	s.log.Debug().Err(err).Int64("bytes", n).Msg("Server stream closed")
}

// SendLine writes one packet line terminated by CRLF.
func (s *Session) SendLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := io.WriteString(s.conn, line+"\r\n"); err != nil {
		return fmt.Errorf("writing line: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
