// Package capture runs the single shared live-capture loop for a scan
// context and fans matched packets out to whichever probe is waiting for
// them, generalizing superapple8x-GoNetWatch's single-purpose ARP-reply
// reader (internal/spoofer/resolver.go's GetMAC) into a registry of
// independent matchers.
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/sirupsen/logrus"

	"netrecon/scanerrors"
)

// Matcher reports whether a captured packet answers a specific probe. It
// must not block and must not retain packet beyond the call.
type Matcher func(packet gopacket.Packet) bool

// Dispatcher reads every packet off a live handle once and offers it to
// each currently registered waiter.
type Dispatcher struct {
	handle *pcap.Handle
	log    logrus.FieldLogger

	mu      sync.Mutex
	waiters map[int]*waiter
	nextID  int

	done chan struct{}
	wg   sync.WaitGroup
}

type waiter struct {
	match Matcher
	ch    chan gopacket.Packet
}

// NewDispatcher starts reading packets from handle in the background.
// Call Stop to release the reader goroutine.
func NewDispatcher(handle *pcap.Handle, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Dispatcher{
		handle:  handle,
		log:     log,
		waiters: make(map[int]*waiter),
		done:    make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	src := gopacket.NewPacketSource(d.handle, layers.LayerTypeEthernet)
	in := src.Packets()
	for {
		select {
		case <-d.done:
			return
		case packet, ok := <-in:
			if !ok {
				return
			}
			d.dispatch(packet)
		}
	}
}

func (d *Dispatcher) dispatch(packet gopacket.Packet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.waiters {
		if w.match(packet) {
			select {
			case w.ch <- packet:
			default:
				d.log.WithField("component", "capture").Debug("waiter channel full, dropping match")
			}
		}
	}
}

// Register installs m and returns a channel that receives every packet m
// matches, plus a function to unregister it. Callers must always call the
// returned cancel function, typically via defer.
func (d *Dispatcher) Register(m Matcher) (<-chan gopacket.Packet, func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	w := &waiter{match: m, ch: make(chan gopacket.Packet, 8)}
	d.waiters[id] = w
	d.mu.Unlock()

	cancel := func() {
		d.mu.Lock()
		delete(d.waiters, id)
		d.mu.Unlock()
	}
	return w.ch, cancel
}

// WaitFor registers m, invokes send, and blocks until either a match
// arrives, ctx is done, or timeout elapses, whichever comes first.
// Registering before send guarantees a reply that outraces the caller back
// to this function is never missed — the same ordering every probe engine
// needs between "start listening" and "transmit", now with one shared
// implementation instead of each probe hand-rolling its own register+select.
func (d *Dispatcher) WaitFor(ctx context.Context, m Matcher, timeout time.Duration, send func() error) (gopacket.Packet, error) {
	ch, cancel := d.Register(m)
	defer cancel()

	if err := send(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case pkt := <-ch:
		return pkt, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: timed out after %s", scanerrors.ErrCaptureFailed, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop halts the read loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	close(d.done)
	d.wg.Wait()
}
