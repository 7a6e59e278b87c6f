// aprstar: APRS-IS telemetry beacon for small Linux hosts
//
// Usage:
//
//	aprstar run       connect to APRS-IS and beacon host telemetry
//	aprstar passcode  print the APRS-IS passcode for a callsign
//	aprstar edit      edit the configuration file
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"aprstar/cmd/edit"
	"aprstar/cmd/passcode"
	"aprstar/cmd/run"
	"aprstar/internal/beacon"
)

const (
	defaultSystemPath = "/etc/aprstar/config.toml"
	defaultLocalPath  = "config.toml"
	version           = "1.0.0"

	// exitNoHost is sysexits EX_NOHOST, used when APRS-IS cannot be reached.
	exitNoHost = 68
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath, args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage()
		os.Exit(1)
	}
	if configPath == "" {
		configPath = discoverConfig()
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	subcommand := args[0]

	switch subcommand {
	case "run":
		err = run.Run(configPath, version)
	case "passcode":
		err = passcode.Run(os.Stdout, args[1:])
	case "edit":
		err = edit.Run(configPath)
	case "version":
		fmt.Printf("aprstar v%s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, beacon.ErrHostUnreachable):
		return exitNoHost
	default:
		return 1
	}
}

// parseArgs strips --config <path> and --config=<path> from args.
func parseArgs(args []string) (configPath string, rest []string, err error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config":
			if i+1 >= len(args) || strings.HasPrefix(args[i+1], "--") {
				return "", nil, errors.New("--config requires a path")
			}
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
			if configPath == "" {
				return "", nil, errors.New("--config requires a path")
			}
		default:
			rest = append(rest, arg)
		}
	}
	return configPath, rest, nil
}

// discoverConfig prefers ./config.toml and falls back to the system path.
func discoverConfig() string {
	if _, err := os.Stat(defaultLocalPath); err == nil {
		return defaultLocalPath
	}
	return defaultSystemPath
}

func printUsage() {
	fmt.Printf(`aprstar v%s - APRS-IS telemetry beacon

Usage:
  aprstar <command> [--config <path>]

Commands:
  run       Connect to APRS-IS and send position and telemetry
  passcode  Print the APRS-IS passcode for one or more callsigns
  edit      Edit the configuration file in your system editor
  version   Print version information
  help      Show this help message

Options:
  --config <path>  Path to config file (default: looks for ./config.toml, then %s)

Examples:
  aprstar run                           # Start beaconing with default config
  aprstar passcode N0CALL-1             # Show the passcode for a callsign
  aprstar edit                          # Edit configuration

`, version, defaultSystemPath)
}
