//go:build linux

package gps

import (
	"testing"
	"time"

	"go.bug.st/serial"
	"golang.org/x/sys/unix"
)

func TestApplyPortOptions_Raw8N1(t *testing.T) {
	opts, err := portOptionsFor(Config{Baud: 9600})
	if err != nil {
		t.Fatalf("portOptionsFor() error: %v", err)
	}
	term := unix.Termios{
		Iflag: unix.ICRNL | unix.IXON,
		Lflag: unix.ECHO | unix.ICANON,
		Cflag: unix.PARENB | unix.CSTOPB | unix.CS7,
	}
	if err := applyPortOptions(&term, opts); err != nil {
		t.Fatalf("applyPortOptions() error: %v", err)
	}

	if term.Cflag&unix.CSIZE != unix.CS8 {
		t.Fatalf("csize=%#x want CS8", term.Cflag&unix.CSIZE)
	}
	if term.Cflag&(unix.PARENB|unix.CSTOPB) != 0 {
		t.Fatalf("expected parity and two stop bits cleared, cflag=%#x", term.Cflag)
	}
	if term.Iflag&(unix.ICRNL|unix.IXON) != 0 || term.Lflag&(unix.ECHO|unix.ICANON) != 0 {
		t.Fatalf("expected raw line, iflag=%#x lflag=%#x", term.Iflag, term.Lflag)
	}
	if term.Cflag&unix.CBAUD != unix.B9600 || term.Ispeed != unix.B9600 || term.Ospeed != unix.B9600 {
		t.Fatalf("speed not set: cflag=%#x ispeed=%#x", term.Cflag, term.Ispeed)
	}
	if term.Cc[unix.VMIN] != 1 || term.Cc[unix.VTIME] != 10 {
		t.Fatalf("vmin=%d vtime=%d want 1/10", term.Cc[unix.VMIN], term.Cc[unix.VTIME])
	}
}

func TestApplyPortOptions_ParityAndTimeout(t *testing.T) {
	opts, err := portOptionsFor(Config{Baud: 115200, Parity: "odd", ReadTimeout: 250 * time.Millisecond})
	if err != nil {
		t.Fatalf("portOptionsFor() error: %v", err)
	}
	var term unix.Termios
	if err := applyPortOptions(&term, opts); err != nil {
		t.Fatalf("applyPortOptions() error: %v", err)
	}
	if term.Cflag&(unix.PARENB|unix.PARODD) != unix.PARENB|unix.PARODD || term.Iflag&unix.INPCK == 0 {
		t.Fatalf("odd parity not set: cflag=%#x iflag=%#x", term.Cflag, term.Iflag)
	}
	if term.Cc[unix.VTIME] != 2 {
		t.Fatalf("vtime=%d want 2", term.Cc[unix.VTIME])
	}
}

func TestApplyPortOptions_Rejects(t *testing.T) {
	cases := []struct {
		name string
		opts portOptions
	}{
		{"Baud", portOptions{Mode: serial.Mode{BaudRate: 1234}}},
		{"DataBits", portOptions{Mode: serial.Mode{BaudRate: 9600, DataBits: 9}}},
		{"Parity", portOptions{Mode: serial.Mode{BaudRate: 9600, Parity: serial.MarkParity}}},
		{"StopBits", portOptions{Mode: serial.Mode{BaudRate: 9600, StopBits: serial.OnePointFiveStopBits}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var term unix.Termios
			if err := applyPortOptions(&term, tc.opts); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestVtime_Clamps(t *testing.T) {
	for _, tc := range []struct {
		d    time.Duration
		want uint8
	}{
		{0, 1},
		{50 * time.Millisecond, 1},
		{time.Second, 10},
		{time.Minute, 255},
	} {
		if got := vtime(tc.d); got != tc.want {
			t.Fatalf("vtime(%s)=%d want %d", tc.d, got, tc.want)
		}
	}
}
