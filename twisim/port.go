package twisim

import (
	"sync/atomic"

	"twilink-go/twi"
)

const (
	ownConfigured  = 1 << 8
	ownGeneralCall = 1 << 0
)

// action records the register-level response a handler gave to one event.
type action struct {
	ack        bool
	stop       bool
	wroteLatch bool
}

// Port is one device's attachment point, implementing twi.Hardware. The
// handler is fixed at construction; the latch and action fields are only
// touched from the bus goroutine (handler context); Start and SetOwnAddress
// are the two methods called from ordinary code.
type Port struct {
	bus     *Bus
	handler func(twi.Status)

	// own packs configured flag, 7-bit address and general-call enable so
	// ordinary code can reconfigure while the bus goroutine matches.
	own atomic.Uint32

	latch   byte
	act     action
	willAck bool
}

// deliver hands one status event to the bound handler and returns the
// response it produced.
func (p *Port) deliver(st twi.Status) action {
	p.act = action{}
	p.handler(st)
	return p.act
}

func (p *Port) Start() {
	// Mirrors a held start request: the peripheral keeps it pending until the
	// bus goroutine picks it up (winning) or drains it (losing arbitration).
	p.bus.reqCh <- p
}

func (p *Port) ReplyAck()  { p.act.ack = true }
func (p *Port) ReplyNack() { p.act.ack = false }

func (p *Port) Stop()             { p.act.stop = true }
func (p *Port) StopPending() bool { return false }

func (p *Port) ReadData() byte { return p.latch }
func (p *Port) WriteData(b byte) {
	p.latch = b
	p.act.wroteLatch = true
}

// Lines reports both lines high whenever no transfer is running.
func (p *Port) Lines() (scl, sda bool) {
	idle := !p.bus.active.Load()
	return idle, idle
}

func (p *Port) SetOwnAddress(addr uint8, generalCall bool) {
	v := uint32(ownConfigured) | uint32(addr&0x7F)<<1
	if generalCall {
		v |= ownGeneralCall
	}
	p.own.Store(v)
}
