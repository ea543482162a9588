// Package twisim is an in-memory multi-device two-wire bus for host builds.
// Each Port implements twi.Hardware; a single bus goroutine serializes
// transfers and delivers status events to the bound drivers exactly the way
// the hardware interrupt would: one event, one register-level response.
//
// The simulation models start-request queueing, simultaneous-start
// arbitration (losers observe arbitration-lost), general-call fan-out,
// target-exhausted reads, missing-target NACKs, and line-state reporting for
// the drivers' bus-idle confirmation.
package twisim

import (
	"sync"
	"sync/atomic"

	"twilink-go/twi"
)

// Bus is a simulated two-wire bus. Create with New, attach devices, then
// Start the bus goroutine.
type Bus struct {
	mu    sync.Mutex
	ports []*Port

	reqCh  chan *Port
	quit   chan struct{}
	done   chan struct{}
	active atomic.Bool
}

func New() *Bus {
	return &Bus{
		reqCh: make(chan *Port, 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// NewPort attaches a new device port with its event handler to the bus. The
// port is published only once it is fully constructed, so attaching is safe
// while the bus goroutine runs.
func (b *Bus) NewPort(handler func(twi.Status)) *Port {
	p := &Port{bus: b, handler: handler}
	b.attach(p)
	return p
}

// AddDevice is the common construction path: new port, new driver, bound
// together.
func (b *Bus) AddDevice(cfg twi.Config) *twi.Driver {
	p := &Port{bus: b}
	d := twi.New(p, cfg)
	p.handler = d.HandleEvent
	b.attach(p)
	return d
}

func (b *Bus) attach(p *Port) {
	b.mu.Lock()
	b.ports = append(b.ports, p)
	b.mu.Unlock()
}

// Start launches the bus goroutine. Ports may still be added afterwards.
func (b *Bus) Start() {
	go b.run()
}

// Close stops the bus goroutine and waits for it to exit.
func (b *Bus) Close() {
	close(b.quit)
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case <-b.quit:
			return
		case p := <-b.reqCh:
			b.transfer(p)
		}
	}
}

// snapshot returns the current port set without holding the lock during
// delivery.
func (b *Bus) snapshot() []*Port {
	b.mu.Lock()
	ports := append([]*Port(nil), b.ports...)
	b.mu.Unlock()
	return ports
}

// match returns the ports addressable at addr. Address 0 selects every port
// with general-call reception enabled.
func (b *Bus) match(addr uint8, exclude *Port) []*Port {
	var out []*Port
	for _, p := range b.snapshot() {
		if p == exclude {
			continue
		}
		own := p.own.Load()
		if own&ownConfigured == 0 {
			continue
		}
		if addr == 0 {
			if own&ownGeneralCall != 0 {
				out = append(out, p)
			}
			continue
		}
		if uint8(own>>1)&0x7F == addr {
			out = append(out, p)
		}
	}
	return out
}

// transfer runs one complete bus transaction with ctrl as the controller.
// Start requests that were already pending at this instant lose arbitration,
// mirroring two controllers leaving the idle check in the same window.
func (b *Bus) transfer(ctrl *Port) {
	b.active.Store(true)
	defer b.active.Store(false)

	for {
		select {
		case loser := <-b.reqCh:
			loser.deliver(twi.StatusArbLost)
			continue
		default:
		}
		break
	}

	ctrl.deliver(twi.StatusStart)
	addrRW := ctrl.latch
	addr := addrRW >> 1

	if addrRW&1 == 1 {
		b.readTransfer(ctrl, addr)
	} else {
		b.writeTransfer(ctrl, addr)
	}
}

// writeTransfer clocks controller-transmit bytes out to every matching
// target. A general call (address 0) fans out to all listeners; the
// controller sees ACK while at least one target keeps acknowledging.
func (b *Bus) writeTransfer(ctrl *Port, addr uint8) {
	gcall := addr == 0
	targets := b.match(addr, ctrl)
	if len(targets) == 0 {
		ctrl.deliver(twi.StatusCtrlTxAddrNack)
		return
	}

	addrSt, dataSt, nackSt := twi.StatusTgtRxAddrAck, twi.StatusTgtRxDataAck, twi.StatusTgtRxDataNack
	if gcall {
		addrSt, dataSt, nackSt = twi.StatusTgtRxGCallAck, twi.StatusTgtRxGCallDataAck, twi.StatusTgtRxGCallDataNack
	}

	for _, t := range targets {
		act := t.deliver(addrSt)
		t.willAck = act.ack
	}
	ca := ctrl.deliver(twi.StatusCtrlTxAddrAck)

	for {
		if ca.stop {
			for _, t := range targets {
				t.deliver(twi.StatusTgtRxStop)
			}
			return
		}
		if !ca.wroteLatch {
			return // handler released the bus without clocking a byte
		}
		data := ctrl.latch
		anyAck := false
		for _, t := range targets {
			t.latch = data
			if t.willAck {
				anyAck = true
				act := t.deliver(dataSt)
				t.willAck = act.ack
			} else {
				act := t.deliver(nackSt)
				t.willAck = act.ack
			}
		}
		if anyAck {
			ca = ctrl.deliver(twi.StatusCtrlTxDataAck)
		} else {
			// Controller records the NACK and forces a stop; targets that
			// were still addressed observe it.
			ca = ctrl.deliver(twi.StatusCtrlTxDataNack)
			for _, t := range targets {
				t.deliver(twi.StatusTgtRxStop)
			}
			return
		}
	}
}

// readTransfer clocks target-transmit bytes back to the controller. The
// controller's acknowledge decision for each byte was armed by its previous
// event; the target's decision marks whether it has more to send.
func (b *Bus) readTransfer(ctrl *Port, addr uint8) {
	targets := b.match(addr, ctrl)
	if len(targets) == 0 {
		ctrl.deliver(twi.StatusCtrlRxAddrNack)
		return
	}
	t := targets[0] // reads are point to point

	ta := t.deliver(twi.StatusTgtTxAddrAck)
	ca := ctrl.deliver(twi.StatusCtrlRxAddrAck)

	for {
		ctrl.latch = t.latch
		if !ca.ack {
			// Controller non-acknowledges: this is the final byte.
			t.deliver(twi.StatusTgtTxDataNack)
			ctrl.deliver(twi.StatusCtrlRxDataNack)
			return
		}
		if ta.ack {
			ta = t.deliver(twi.StatusTgtTxDataAck)
			ca = ctrl.deliver(twi.StatusCtrlRxDataAck)
			continue
		}
		// Target exhausted but the controller acknowledged: the target saw
		// its last byte accepted and releases; further bytes read as 0xFF
		// with nobody driving the line.
		t.deliver(twi.StatusTgtTxLastData)
		ca = ctrl.deliver(twi.StatusCtrlRxDataAck)
		for ca.ack {
			ctrl.latch = 0xFF
			ca = ctrl.deliver(twi.StatusCtrlRxDataAck)
		}
		ctrl.latch = 0xFF
		ctrl.deliver(twi.StatusCtrlRxDataNack)
		return
	}
}
