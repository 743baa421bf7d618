// Package probe implements the protocol engines: small state machines that
// send one crafted packet (or, for Connect, perform a real handshake) and
// classify the response into a scanstatus.TargetScanStatus.
package probe

import (
	"github.com/sirupsen/logrus"
)

// Engine bundles the shared resources every probe method needs: a Sender to
// transmit from and a Receiver to wait on. Both are interfaces so tests can
// substitute a fake in place of *netctx.Context/*capture.Dispatcher's live
// raw sockets.
type Engine struct {
	Net Sender
	Cap Receiver
	Log logrus.FieldLogger
}

// NewEngine builds an Engine, defaulting Log to the standard logger.
func NewEngine(nc Sender, cap Receiver, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{Net: nc, Cap: cap, Log: log}
}

// ipID is a process-wide monotonic counter used to stamp outgoing IPv4
// packets' identification field; probe engines that need to observe a
// peer's own IP-ID (the idle scan) read the peer's responses, not this
// counter, but every packet this engine sends still needs a plausible one.
var ipID = newIDCounter()

type idCounter struct {
	ch chan uint16
}

func newIDCounter() *idCounter {
	c := &idCounter{ch: make(chan uint16, 1)}
	c.ch <- 1
	return c
}

func (c *idCounter) next() uint16 {
	v := <-c.ch
	c.ch <- v + 1
	return v
}

func nextIPID() uint16 { return ipID.next() }
