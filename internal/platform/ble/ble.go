// Package ble connects to the sensor peripheral over Bluetooth Low Energy and
// exposes its notification characteristic as a stream of raw lines.
package ble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

var (
	ErrDeviceNotFound         = errors.New("ble: device not found")
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
	ErrClosed                 = errors.New("ble: stream closed")
	ErrIdle                   = errors.New("ble: no notification within idle timeout")
)

const (
	lineBuffer = 64
	// dropLogEvery thins out drop warnings while the reader stays behind.
	dropLogEvery = 50
)

type Config struct {
	DeviceName         string
	CharacteristicUUID string
	ScanTimeout        time.Duration
	// IdleTimeout ends a stream when no notification arrives in time. Zero
	// waits forever.
	IdleTimeout time.Duration
}

// scanner is the part of *bluetooth.Adapter a scan needs.
type scanner interface {
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// stopRetry paces StopScan attempts that race the start of a scan.
var stopRetry = 50 * time.Millisecond

// Source opens one GATT connection per call to Open. The adapter is shared,
// so scans are serialized.
type Source struct {
	cfg     Config
	adapter *bluetooth.Adapter
	scanner scanner
	logger  zerolog.Logger

	enableOnce sync.Once
	enableErr  error
	scanMu     sync.Mutex
}

func NewSource(cfg Config, logger zerolog.Logger) *Source {
	return &Source{
		cfg:     cfg,
		adapter: bluetooth.DefaultAdapter,
		scanner: bluetooth.DefaultAdapter,
		logger:  logger.With().Str("component", "ble").Logger(),
	}
}

func (s *Source) enable() error {
	s.enableOnce.Do(func() {
		s.enableErr = s.adapter.Enable()
	})
	if s.enableErr != nil {
		return fmt.Errorf("enable adapter: %w", s.enableErr)
	}
	return nil
}

// Peripheral is one advertisement seen during a scan.
type Peripheral struct {
	Name    string
	Address string
	RSSI    int16
}

// scan runs the adapter scan until visit returns false, the timeout elapses
// or ctx is done. The adapter must already be enabled.
func (s *Source) scan(ctx context.Context, timeout time.Duration, visit func(bluetooth.ScanResult) bool) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// StopScan fails while the scan is still starting, so a stop only counts
	// once the adapter accepts it.
	var (
		stopMu  sync.Mutex
		stopped bool
	)
	stop := func() {
		stopMu.Lock()
		defer stopMu.Unlock()
		if !stopped && s.scanner.StopScan() == nil {
			stopped = true
		}
	}

	finished := make(chan struct{})
	go func() {
		select {
		case <-finished:
			return
		case <-ctx.Done():
		}
		ticker := time.NewTicker(stopRetry)
		defer ticker.Stop()
		for {
			stop()
			select {
			case <-finished:
				return
			case <-ticker.C:
			}
		}
	}()

	err := s.scanner.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if ctx.Err() != nil || !visit(result) {
			stop()
		}
	})
	close(finished)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return nil
}

// Discover lists every named peripheral advertising during the window,
// strongest signal first.
func (s *Source) Discover(ctx context.Context, timeout time.Duration) ([]Peripheral, error) {
	if err := s.enable(); err != nil {
		return nil, err
	}
	seen := make(map[string]Peripheral)
	var mu sync.Mutex
	err := s.scan(ctx, timeout, func(r bluetooth.ScanResult) bool {
		mu.Lock()
		defer mu.Unlock()
		seen[r.Address.String()] = Peripheral{Name: r.LocalName(), Address: r.Address.String(), RSSI: r.RSSI}
		return true
	})
	if err != nil {
		return nil, err
	}

	out := make([]Peripheral, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RSSI > out[j].RSSI })
	return out, nil
}

// Open scans for the configured device, connects, and subscribes to the
// characteristic. Failures are not retried.
func (s *Source) Open(ctx context.Context) (*Stream, error) {
	charUUID, err := bluetooth.ParseUUID(s.cfg.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("parse characteristic uuid %q: %w", s.cfg.CharacteristicUUID, err)
	}
	if err := s.enable(); err != nil {
		return nil, err
	}

	var (
		found bool
		addr  bluetooth.Address
	)
	err = s.scan(ctx, s.cfg.ScanTimeout, func(r bluetooth.ScanResult) bool {
		if r.LocalName() != s.cfg.DeviceName {
			return true
		}
		found, addr = true, r.Address
		return false
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, s.cfg.DeviceName)
	}
	log := s.logger.With().Str("device", s.cfg.DeviceName).Str("address", addr.String()).Logger()
	log.Info().Msg("device found, connecting")

	device, err := s.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr.String(), err)
	}
	disconnect := func() error { return device.Disconnect() }

	services, err := device.DiscoverServices(nil)
	if err != nil {
		disconnect()
		return nil, fmt.Errorf("discover services: %w", err)
	}

	stream := newStream(s.cfg.IdleTimeout, disconnect, log)
	subscribed := false
	for i := range services {
		chars, err := services[i].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
		if err != nil || len(chars) == 0 {
			continue
		}
		if err := chars[0].EnableNotifications(stream.deliver); err != nil {
			disconnect()
			return nil, fmt.Errorf("enable notifications: %w", err)
		}
		subscribed = true
		break
	}
	if !subscribed {
		disconnect()
		return nil, fmt.Errorf("%w: %s", ErrCharacteristicNotFound, s.cfg.CharacteristicUUID)
	}

	log.Info().Msg("streaming notifications")
	return stream, nil
}

// Stream buffers notifications. When the buffer is full new notifications are
// dropped, counted and logged.
type Stream struct {
	lines      chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	disconnect func() error
	idle       time.Duration
	dropped    atomic.Int64
	logger     zerolog.Logger
}

func newStream(idle time.Duration, disconnect func() error, logger zerolog.Logger) *Stream {
	return &Stream{
		lines:      make(chan []byte, lineBuffer),
		done:       make(chan struct{}),
		disconnect: disconnect,
		idle:       idle,
		logger:     logger,
	}
}

// deliver runs on the bluetooth stack's goroutine; buf is reused after it
// returns.
func (s *Stream) deliver(buf []byte) {
	line := bytes.Clone(buf)
	select {
	case <-s.done:
	case s.lines <- line:
	default:
		if n := s.dropped.Add(1); n == 1 || n%dropLogEvery == 0 {
			s.logger.Warn().Int64("dropped", n).Msg("reader fell behind, dropping notification")
		}
	}
}

// Read returns the next notification payload.
func (s *Stream) Read(ctx context.Context) ([]byte, error) {
	var idle <-chan time.Time
	if s.idle > 0 {
		t := time.NewTimer(s.idle)
		defer t.Stop()
		idle = t.C
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	case <-idle:
		return nil, ErrIdle
	case line := <-s.lines:
		return line, nil
	}
}

// Dropped reports notifications discarded because the reader fell behind.
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}

// Close disconnects from the peripheral. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.disconnect != nil {
			err = s.disconnect()
		}
	})
	return err
}
