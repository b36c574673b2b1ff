package location

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errChecksum  = errors.New("nmea checksum mismatch")
	errMalformed = errors.New("malformed nmea sentence")
)

// ParseSentence decodes GGA and RMC sentences from any talker. ok is
// false for other sentence types and for sentences without a valid fix.
func ParseSentence(line string) (fix Fix, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return fix, false, nil
	}
	body := line[1:]
	if i := strings.IndexByte(body, '*'); i >= 0 {
		sum, perr := strconv.ParseUint(body[i+1:], 16, 8)
		if perr != nil {
			return fix, false, errMalformed
		}
		body = body[:i]
		if byte(sum) != checksum(body) {
			return fix, false, errChecksum
		}
	}
	fields := strings.Split(body, ",")
	if len(fields[0]) != 5 {
		return fix, false, nil
	}
	switch fields[0][2:] {
	case "GGA":
		// time, lat, N/S, lon, E/W, quality
		if len(fields) < 7 || fields[6] == "" || fields[6] == "0" {
			return fix, false, nil
		}
		fix.UTC = fields[1]
		fix.Lat, fix.Lon, err = parseLatLon(fields[2:6])
	case "RMC":
		// time, status, lat, N/S, lon, E/W
		if len(fields) < 7 || fields[2] != "A" {
			return fix, false, nil
		}
		fix.UTC = fields[1]
		fix.Lat, fix.Lon, err = parseLatLon(fields[3:7])
	default:
		return fix, false, nil
	}
	if err != nil {
		return Fix{}, false, err
	}
	return fix, true, nil
}

func checksum(s string) (sum byte) {
	for i := 0; i < len(s); i++ {
		sum ^= s[i]
	}
	return
}

// parseLatLon decodes "ddmm.mmmm,N,dddmm.mmmm,E".
func parseLatLon(f []string) (lat, lon float64, err error) {
	if lat, err = parseCoord(f[0], 2); err != nil {
		return
	}
	if lon, err = parseCoord(f[2], 3); err != nil {
		return
	}
	switch f[1] {
	case "S":
		lat = -lat
	case "N":
	default:
		return 0, 0, fmt.Errorf("%w: hemisphere %q", errMalformed, f[1])
	}
	switch f[3] {
	case "W":
		lon = -lon
	case "E":
	default:
		return 0, 0, fmt.Errorf("%w: hemisphere %q", errMalformed, f[3])
	}
	return
}

func parseCoord(s string, degDigits int) (float64, error) {
	if len(s) < degDigits+2 {
		return 0, fmt.Errorf("%w: coordinate %q", errMalformed, s)
	}
	deg, err := strconv.Atoi(s[:degDigits])
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", errMalformed, s)
	}
	minutes, err := strconv.ParseFloat(s[degDigits:], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", errMalformed, s)
	}
	return float64(deg) + minutes/60, nil
}
