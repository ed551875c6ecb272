// Package ws is the WebSocket-bridged gateway link: a RAMSES dongle
// behind an HTTP endpoint, one packet line per WebSocket text message.
package ws

import (
	"context"
	"sync"

	"nhooyr.io/websocket"

	"github.com/risa-org/ramses2/link"
)

// Link implements link.Link over a WebSocket connection.
// Each packet line travels as one text message. Unlike TCP, WebSocket
// already has message boundaries built in, so no line scanning is
// needed — the bridge does the framing for us.
type Link struct {
	conn       *websocket.Conn
	frames     chan []byte
	disconnect chan link.DisconnectEvent
	closeOnce  sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
}

// Dial connects to a bridge at a ws:// or wss:// URL and wraps the
// connection.
func Dial(ctx context.Context, url string) (*Link, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// New wraps an existing *websocket.Conn in a Link.
func New(conn *websocket.Conn) *Link {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		conn:       conn,
		frames:     make(chan []byte, 64),
		disconnect: make(chan link.DisconnectEvent, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	go l.readLoop()
	return l
}

func (l *Link) WriteFrame(frame []byte) error {
	if err := l.conn.Write(l.ctx, websocket.MessageText, frame); err != nil {
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

func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.conn.Close(websocket.StatusNormalClosure, "closed")
	})
	return err
}

func (l *Link) readLoop() {
	defer func() {
		close(l.frames)
		l.Close()
	}()

	for {
		_, data, err := l.conn.Read(l.ctx)
		if err != nil {
			l.signalDisconnect(err)
			return
		}
		if len(data) == 0 {
			continue
		}
		l.frames <- data
	}
}

// signalDisconnect sends exactly one disconnect event.
// StatusNormalClosure (1000) and StatusGoingAway (1001) are both clean
// closes — different WebSocket implementations and shutdown timing
// produce either code. Context cancellation means we closed it
// ourselves — also clean.
func (l *Link) signalDisconnect(err error) {
	event := link.DisconnectEvent{}

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure,
		status == websocket.StatusGoingAway,
		l.ctx.Err() != nil:
		event.Reason = link.ReasonClosedClean
	default:
		event.Reason = link.ReasonReadError
		event.Err = err
	}

	select {
	case l.disconnect <- event:
	default:
	}
}
