package passcode

import (
	"fmt"
	"io"
	"strings"

	"aprstar/internal/aprsis"
)

// Run prints the APRS-IS passcode for each callsign to w. The SSID, if any,
// does not change the result.
func Run(w io.Writer, callsigns []string) error {
	if len(callsigns) == 0 {
		return fmt.Errorf("usage: aprstar passcode <callsign> [callsign...]")
	}
	for _, call := range callsigns {
		call = strings.TrimSpace(call)
		if call == "" {
			return fmt.Errorf("empty callsign")
		}
		fmt.Fprintf(w, "%s %s\n", strings.ToUpper(call), aprsis.Passcode(call))
	}
	return nil
}
