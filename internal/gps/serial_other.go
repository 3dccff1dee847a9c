//go:build !linux

package gps

import (
	"io"

	"go.bug.st/serial"
)

func openSerial(path string, opts portOptions) (io.ReadCloser, error) {
	mode := opts.Mode
	port, err := serial.Open(path, &mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	return port, nil
}
