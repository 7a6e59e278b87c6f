package aprsis

import (
	"strconv"
	"strings"
)

// Passcode returns the APRS-IS login passcode for a callsign.
// The SSID is ignored, so N0CALL and N0CALL-7 share a passcode.
func Passcode(callsign string) string {
	base := strings.ToUpper(strings.TrimSpace(callsign))
	if i := strings.IndexByte(base, '-'); i >= 0 {
		base = base[:i]
	}
	if len(base) > 10 {
		base = base[:10]
	}

	hash := 0x73e2
	for i := 0; i < len(base); i += 2 {
		hash ^= int(base[i]) << 8
		if i+1 < len(base) {
			hash ^= int(base[i+1])
		}
	}
	return strconv.Itoa(hash & 0x7fff)
}
