package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"arlayout/internal/geomath"
)

// AutoDevice asks Start to probe the usual USB serial paths.
const AutoDevice = "auto"

// Config controls the GPS reader. Device is a serial path or AutoDevice.
// MetersPerHDOP turns GGA dilution into an accuracy radius; 0 uses 5.
// Parity is none, odd or even; ReadTimeout 0 uses one second.
type Config struct {
	Device        string
	Baud          int
	Parity        string
	ReadTimeout   time.Duration
	MetersPerHDOP float64
}

// Fix is the receiver's view of the device location.
type Fix struct {
	Valid bool
	// Lost is set when a valid fix was followed by a void RMC.
	Lost bool

	Coord      geomath.Coordinate
	Time       time.Time
	AccuracyM  float64
	HDOP       float64
	Satellites int
	SpeedMS    float64
	CourseDeg  *float64
}

// Snapshot is the latest published state. Seq increments on every fix
// change so pollers can detect new data.
type Snapshot struct {
	Fix
	Seq       uint64
	Running   bool
	Device    string
	Baud      int
	LastError string
}

type Service struct {
	cfg Config
	log zerolog.Logger

	open func(path string, opts portOptions) (io.ReadCloser, error)
	now  func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer
}

func New(cfg Config, log zerolog.Logger) *Service {
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.MetersPerHDOP <= 0 {
		cfg.MetersPerHDOP = 5
	}
	s := &Service{
		cfg:  cfg,
		log:  log,
		open: openSerial,
		now:  time.Now,
	}
	s.last.Store(Snapshot{Device: cfg.Device, Baud: cfg.Baud})
	return s
}

// Start opens the serial device and reads it in the background until ctx
// is done or Close is called.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	device := strings.TrimSpace(s.cfg.Device)
	if device == "" || device == AutoDevice {
		device = autoDetectDevice()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps auto-detect failed")
		}
	}

	opts, err := portOptionsFor(s.cfg)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps config invalid: %v", err))
		return fmt.Errorf("gps port options: %w", err)
	}
	port, err := s.open(device, opts)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, s.cfg.Baud, err))
		return fmt.Errorf("opening gps device %s: %w", device, err)
	}
	s.closer = port

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.last.Store(Snapshot{Running: true, Device: device, Baud: s.cfg.Baud})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = port.Close() }()

		s.log.Info().Str("device", device).Int("baud", s.cfg.Baud).Msg("gps enabled")
		if err := s.Run(childCtx, port); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Msg("gps read stopped")
		}
	}()
	return nil
}

// Run consumes NMEA lines from r until EOF or ctx is done. Start calls it
// with the serial port; it also replays captured logs.
func (s *Service) Run(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	// NMEA sentences are at most 82 chars; leave headroom for chatter.
	sc.Buffer(make([]byte, 0, 256), 4096)

	st := fixState{metersPerHDOP: s.cfg.MetersPerHDOP}
	seq := s.Snapshot().Seq
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !sc.Scan() {
			err := sc.Err()
			if err == nil {
				err = io.EOF
			}
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line := strings.TrimSpace(sc.Text())
		// Receivers may interleave binary or text chatter.
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sent, err := parseNMEASentence(line)
		if err != nil {
			s.setError(err.Error())
			s.log.Debug().Err(err).Msg("dropping nmea sentence")
			continue
		}
		if !st.apply(s.now(), sent) {
			continue
		}

		seq++
		cur := s.Snapshot()
		cur.Fix = st.fix()
		cur.Seq = seq
		s.last.Store(cur)
		if cur.Lost {
			s.log.Info().Msg("gps fix lost")
		}
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Closing the port unblocks a pending read.
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()

	cur := s.Snapshot()
	cur.Running = false
	s.last.Store(cur)
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

// setErrorLocked keeps validity; a noisy line is not a lost fix.
func (s *Service) setErrorLocked(msg string) {
	cur := s.Snapshot()
	cur.LastError = msg
	s.last.Store(cur)
}

func autoDetectDevice() string {
	var candidates []string
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
