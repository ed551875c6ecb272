package packet

import (
	"context"
	"testing"
	"time"

	"github.com/risa-org/ramses2/link"
	"github.com/risa-org/ramses2/link/mem"
	"github.com/risa-org/ramses2/ramses"
)

// stackOverPair wires a Protocol over one end of a mem pair and hands
// back the far end, which plays the radio gateway.
func stackOverPair(t *testing.T, recv PacketHandler, opts ...Option) (*Protocol, *mem.Link) {
	t.Helper()
	near, far := mem.Pair()
	p := New(near, recv, nil, opts...)
	return p, far
}

func TestValidLinesBecomePackets(t *testing.T) {
	got := make(chan *ramses.Packet, 1)
	p, far := stackOverPair(t, func(pkt *ramses.Packet) { got <- pkt })
	defer p.Close()

	line := "072 RP --- 01:123456 18:000730 --:------ 3220 002 0000"
	if err := far.WriteFrame([]byte(line)); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	select {
	case pkt := <-got:
		if pkt.Code != "3220" {
			t.Errorf("code = %q, want 3220", pkt.Code)
		}
		if pkt.Src() != "01:123456" {
			t.Errorf("src = %q, want 01:123456", pkt.Src())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestGarbageLinesAreDropped(t *testing.T) {
	got := make(chan *ramses.Packet, 2)
	p, far := stackOverPair(t, func(pkt *ramses.Packet) { got <- pkt })
	defer p.Close()

	// noise first, then a valid line — only the valid one comes through
	far.WriteFrame([]byte("### radio collision garbage"))
	far.WriteFrame([]byte("072 RP --- 01:123456 18:000730 --:------ 3220 002 0000"))

	select {
	case pkt := <-got:
		if pkt.Code != "3220" {
			t.Errorf("first delivered packet should be the valid line, got code %q", pkt.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the valid packet")
	}

	select {
	case pkt := <-got:
		t.Errorf("garbage line was delivered as a packet: %v", pkt)
	case <-time.After(100 * time.Millisecond):
		// nothing else arrived — the garbage was dropped
	}
}

func TestSendDataWritesTheFrame(t *testing.T) {
	p, far := stackOverPair(t, nil)
	defer p.Close()

	cmd, err := ramses.NewCommand(ramses.VerbRQ, "1F09", "01:123456", "00")
	if err != nil {
		t.Fatalf("NewCommand failed: %v", err)
	}

	if err := p.SendData(context.Background(), cmd); err != nil {
		t.Fatalf("SendData failed: %v", err)
	}

	select {
	case frame := <-far.Frames():
		want := "RQ --- 18:000730 01:123456 --:------ 1F09 001 00"
		if string(frame) != want {
			t.Errorf("frame = %q, want %q", frame, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the outbound frame")
	}
}

func TestSendDataHonorsCancelledContext(t *testing.T) {
	p, _ := stackOverPair(t, nil)
	defer p.Close()

	cmd, _ := ramses.NewCommand(ramses.VerbRQ, "1F09", "01:123456", "00")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.SendData(ctx, cmd); err == nil {
		t.Error("SendData with a cancelled context should fail")
	}
}

func TestTapSeesPacketsBeforeTheHandler(t *testing.T) {
	var order []string
	done := make(chan struct{})

	p, far := stackOverPair(t,
		func(pkt *ramses.Packet) { order = append(order, "recv"); close(done) },
		WithTap(func(pkt *ramses.Packet) { order = append(order, "tap") }))
	defer p.Close()

	far.WriteFrame([]byte("072 RP --- 01:123456 18:000730 --:------ 3220 002 0000"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	// both run on the read-loop goroutine, so order is observable
	if len(order) != 2 || order[0] != "tap" || order[1] != "recv" {
		t.Errorf("delivery order = %v, want [tap recv]", order)
	}
}

func TestDoneProxiesTheLinkDisconnect(t *testing.T) {
	p, far := stackOverPair(t, nil)

	far.Close()

	select {
	case ev := <-p.Done():
		if ev.Reason != link.ReasonClosedClean {
			t.Errorf("reason = %d, want clean close", ev.Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect event")
	}
}
