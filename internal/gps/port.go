package gps

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

const defaultReadTimeout = time.Second

// portOptions is the line setup handed to openSerial on every platform.
type portOptions struct {
	Mode        serial.Mode
	ReadTimeout time.Duration
}

func parseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unknown parity %q", s)
	}
}

// portOptionsFor builds the line setup for cfg. Receivers talk 8 data bits
// and one stop bit; baud, parity and read timeout are configurable.
func portOptionsFor(cfg Config) (portOptions, error) {
	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return portOptions{}, err
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	return portOptions{
		Mode: serial.Mode{
			BaudRate: cfg.Baud,
			DataBits: 8,
			Parity:   parity,
			StopBits: serial.OneStopBit,
		},
		ReadTimeout: timeout,
	}, nil
}
