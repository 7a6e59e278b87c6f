package edit

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// DefaultTemplate is written when the config file does not exist yet.
const DefaultTemplate = `[APRS]
  call         = "N0CALL-1"
  # passcode   = "13023"
  # latitude   = 37.7749
  # longitude  = -122.4194
  sleep        = 600
  symbol       = "n"
  symbol_table = "/"

[beacon]
  server         = "rotate.aprs2.net"
  port           = 14580
  comment        = "aprstar"
  sequence_file  = "/var/lib/aprstar/sequence"
  log_level      = "info"
  # log_file       = "/var/log/aprstar/aprstar.log"
  # metrics_listen = "127.0.0.1:9108"
`

// Run opens the configuration file in the system editor, creating it from
// DefaultTemplate first if needed.
func Run(path string) error {
	if err := ensure(path); err != nil {
		return err
	}

	editor := findEditor()
	if editor == "" {
		return fmt.Errorf("no editor found ($EDITOR environment variable not set, and vi/nano/vim not in PATH)")
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ensure creates path from the default template when it is missing.
func ensure(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("Creating new config file at %s...\n", path)
		if err := os.WriteFile(path, []byte(DefaultTemplate), 0644); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
	}
	return nil
}

func findEditor() string {
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	for _, e := range []string{"vi", "nano", "vim"} {
		if _, err := exec.LookPath(e); err == nil {
			return e
		}
	}
	return ""
}
