package gps

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"arlayout/internal/geomath"
)

type nmeaSentence struct {
	Type string
	// Fields is the comma-split payload, talker+type first.
	Fields []string
}

func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nmeaSentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return nmeaSentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return nmeaSentence{}, fmt.Errorf("nmea: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return nmeaSentence{}, fmt.Errorf("nmea: bad checksum")
	}
	if got := checksum(payload); got != want[0] {
		return nmeaSentence{}, fmt.Errorf("nmea: checksum mismatch got=%02X want=%02X", got, want[0])
	}

	parts := strings.Split(payload, ",")
	if len(parts[0]) < 3 {
		return nmeaSentence{}, fmt.Errorf("nmea: short type")
	}
	// GNRMC, GPRMC and friends all reduce to RMC.
	t := parts[0]
	t = t[len(t)-3:]
	return nmeaSentence{Type: strings.ToUpper(t), Fields: parts}, nil
}

func checksum(payload string) byte {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return ck
}

// fixState accumulates RMC and GGA into one device location.
type fixState struct {
	metersPerHDOP float64

	latDeg float64
	lonDeg float64
	posOK  bool

	altM  float64
	altOK bool

	courseDeg float64
	courseOK  bool
	speedMS   float64

	satellites int
	hdop       float64
	hdopOK     bool

	lastFix time.Time
	valid   bool
	lost    bool
}

// apply folds one sentence into the state. It reports whether the published
// fix changed, which includes a transition to lost.
func (s *fixState) apply(now time.Time, sent nmeaSentence) bool {
	switch sent.Type {
	case "RMC":
		return s.applyRMC(now, sent.Fields)
	case "GGA":
		return s.applyGGA(now, sent.Fields)
	default:
		return false
	}
}

// RMC fields: 1 time, 2 status (A/V), 3-4 lat, 5-6 lon, 7 speed (kt),
// 8 course (deg), 9 date.
func (s *fixState) applyRMC(now time.Time, f []string) bool {
	if len(f) < 10 {
		return false
	}
	if strings.TrimSpace(f[2]) != "A" {
		if s.valid {
			s.valid = false
			s.lost = true
			return true
		}
		return false
	}

	lat, latOK := parseNMEALatLon(f[3], f[4])
	lon, lonOK := parseNMEALatLon(f[5], f[6])
	if !latOK || !lonOK {
		return false
	}
	s.latDeg, s.lonDeg, s.posOK = lat, lon, true

	if kt, ok := parseFloat(f[7]); ok {
		s.speedMS = kt * 0.514444
	}
	if crs, ok := parseFloat(f[8]); ok {
		s.courseDeg = geomath.NormalizeDegrees(crs)
		s.courseOK = true
	} else {
		s.courseOK = false
	}

	s.lastFix = now
	s.valid = true
	s.lost = false
	return true
}

// GGA fields: 2-3 lat, 4-5 lon, 6 quality (0 invalid), 7 satellites,
// 8 HDOP, 9-10 altitude (M).
func (s *fixState) applyGGA(now time.Time, f []string) bool {
	if len(f) < 11 {
		return false
	}
	q := strings.TrimSpace(f[6])
	if q == "" || q == "0" {
		return false
	}
	if sats, err := strconv.Atoi(strings.TrimSpace(f[7])); err == nil {
		s.satellites = sats
	}
	if hdop, ok := parseFloat(f[8]); ok {
		s.hdop, s.hdopOK = hdop, true
	}
	if alt, ok := parseFloat(f[9]); ok {
		s.altM, s.altOK = alt, true
	}

	lat, latOK := parseNMEALatLon(f[2], f[3])
	lon, lonOK := parseNMEALatLon(f[4], f[5])
	if latOK && lonOK {
		s.latDeg, s.lonDeg, s.posOK = lat, lon, true
	}
	if !s.posOK {
		return false
	}
	s.lastFix = now
	s.valid = true
	s.lost = false
	return true
}

func (s *fixState) fix() Fix {
	out := Fix{
		Valid:      s.valid,
		Lost:       s.lost,
		Time:       s.lastFix,
		Satellites: s.satellites,
		SpeedMS:    s.speedMS,
	}
	if s.posOK {
		out.Coord = geomath.NewCoordinate(s.latDeg, s.lonDeg)
		if s.altOK {
			out.Coord = out.Coord.WithAltitude(s.altM)
		}
	}
	if s.courseOK {
		v := s.courseDeg
		out.CourseDeg = &v
	}
	if s.hdopOK {
		out.HDOP = s.hdop
		out.AccuracyM = s.hdop * s.metersPerHDOP
	}
	return out
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseNMEALatLon parses ddmm.mmmm (lat) or dddmm.mmmm (lon) plus hemisphere.
func parseNMEALatLon(v string, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return 0, false
	}

	// The last two integer digits are whole minutes.
	intPart := v
	if dot := strings.IndexByte(v, '.'); dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}
	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil || mins >= 60 {
		return 0, false
	}

	dec := float64(deg) + mins/60
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
