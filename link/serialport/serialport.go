// Package serialport is the physical link: a RAMSES radio gateway
// (HGI80 or compatible USB dongle) on a local serial port.
package serialport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/risa-org/ramses2/link"
)

// Settings is the physical-link parameter bundle handed verbatim to
// the serial opener. The gateway dialect is fixed — these values come
// from configuration only so deployments can adapt to odd clones, not
// because the protocol allows variation.
type Settings struct {
	Baud        int
	DataBits    int
	Parity      string // "none", "even", "odd"
	StopBits    int
	ReadTimeout time.Duration // 0 means block until data arrives
}

// DefaultSettings is the HGI80 dialect: 115200 8N1, blocking reads.
func DefaultSettings() Settings {
	return Settings{
		Baud:     115200,
		DataBits: 8,
		Parity:   "none",
		StopBits: 1,
	}
}

// mode translates Settings into the serial library's Mode. Unknown
// parity or stop-bit values fall back to the gateway defaults rather
// than failing — a typo in a config file should not brick the monitor.
func (s Settings) mode() *serial.Mode {
	parity := serial.NoParity
	switch s.Parity {
	case "even":
		parity = serial.EvenParity
	case "odd":
		parity = serial.OddParity
	}
	stop := serial.OneStopBit
	if s.StopBits == 2 {
		stop = serial.TwoStopBits
	}
	bits := s.DataBits
	if bits == 0 {
		bits = 8
	}
	baud := s.Baud
	if baud == 0 {
		baud = 115200
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: bits,
		Parity:   parity,
		StopBits: stop,
	}
}

// Link implements link.Link over a local serial port.
// Same line framing as the tcp link — the dongle speaks CRLF-terminated
// packet lines in both directions.
type Link struct {
	port       serial.Port
	frames     chan []byte
	disconnect chan link.DisconnectEvent
	closeOnce  sync.Once
	writeMu    sync.Mutex
}

// Open opens the named port ("/dev/ttyUSB0", "COM3") with the given
// settings and starts the read loop.
func Open(name string, settings Settings) (*Link, error) {
	port, err := serial.Open(name, settings.mode())
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	if settings.ReadTimeout > 0 {
		if err := port.SetReadTimeout(settings.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
		}
	}

	l := &Link{
		port:       port,
		frames:     make(chan []byte, 64),
		disconnect: make(chan link.DisconnectEvent, 1),
	}
	go l.readLoop()
	return l, nil
}

// WriteFrame writes one line plus CRLF to the dongle.
// The radio is half-duplex and slow — one writer at a time.
func (l *Link) WriteFrame(frame []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	out := make([]byte, 0, len(frame)+2)
	out = append(out, frame...)
	out = append(out, '\r', '\n')

	if _, err := l.port.Write(out); err != nil {
		return link.ErrLinkClosed
	}
	return nil
}

func (l *Link) Frames() <-chan []byte {
	return l.frames
}

func (l *Link) Disconnected() <-chan link.DisconnectEvent {
	return l.disconnect
}

// Close shuts the port down. Safe to call multiple times.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.port.Close()
	})
	return err
}

func (l *Link) readLoop() {
	defer func() {
		close(l.frames)
		l.Close()
	}()

	scanner := bufio.NewScanner(l.port)
	for scanner.Scan() {
		line := scanner.Bytes()
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) == 0 {
			continue // the dongle emits blank lines between bursts
		}

		frame := make([]byte, len(line))
		copy(frame, line)

		l.frames <- frame
	}

	l.signalDisconnect(scanner.Err())
}

// signalDisconnect mirrors the tcp link: a scanner ending without an
// error (or with the port-closed error our own Close provokes) is a
// clean close; anything else means the dongle went away.
func (l *Link) signalDisconnect(err error) {
	event := link.DisconnectEvent{}

	var portErr *serial.PortError
	closedByUs := errors.As(err, &portErr) && portErr.Code() == serial.PortClosed

	if err == nil || errors.Is(err, io.EOF) || closedByUs {
		event.Reason = link.ReasonClosedClean
	} else {
		event.Reason = link.ReasonReadError
		event.Err = err
	}

	select {
	case l.disconnect <- event:
	default:
	}
}
