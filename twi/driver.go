// Package twi is an interrupt-driven two-wire (I2C) bus driver. One Driver
// owns one bus port. The port's event handler (HandleEvent) runs in interrupt
// context on MCU builds and in the simulator's bus goroutine on host builds;
// the buffered API runs in ordinary code and synchronizes with the handler
// through the busy flag.
//
// The driver assumes exactly one in-flight transfer at a time. Blocking
// operations spin on the busy flag; there is no timeout, matching the bus
// model (no external clock source is assumed).
package twi

import (
	"runtime"
	"sync/atomic"
)

// BufferSize is the capacity of the shared transfer buffer. It bounds
// controller writes and target transmits; controller reads are not bounded by
// it.
const BufferSize = 32

// maxReadLen bounds a controller read.
const maxReadLen = 255

const (
	dirWrite = 0
	dirRead  = 1
)

// Config controls non-hardware behavior. The zero value is usable.
type Config struct {
	// BusBusyChecks is the number of consecutive idle samples of SCL/SDA
	// required before arming a transfer. The TWI peripheral does not itself
	// re-check for bus activity that begins just after a stop condition, so
	// two devices freed at the same instant can collide; the idle confirmation
	// closes that window. Set to zero only when this is the sole
	// controller-capable device on the bus. Defaults to 16.
	BusBusyChecks uint8

	// NoBusyChecks disables the idle confirmation entirely (distinguishes an
	// explicit zero from an unset BusBusyChecks).
	NoBusyChecks bool

	// AbortWhenBusy selects the abort variant of the idle confirmation: a
	// single non-idle sample records arbitration-lost in LastError and returns
	// without arming, instead of restarting the countdown and spinning.
	AbortWhenBusy bool
}

// Driver is the single owner of a bus port's transfer context. Construct with
// New; the zero value is not usable.
type Driver struct {
	hw Hardware

	// Shared transfer context. buf, rx, cursor and count are written by the
	// API only while no transfer is armed and by the handler only between
	// Start and the terminal event; the busy flag orders the two sides.
	buf    [BufferSize]byte
	rx     []byte
	cursor uint16
	count  uint16
	target uint8 // latched 7-bit address plus direction bit

	busy    atomic.Bool
	lastErr atomic.Uint32

	// Callback references are read in handler context and may be installed
	// from ordinary code mid-run (the lobby claims an address and only then
	// arms its poll answerer), so they need their own ordering.
	onRequest atomic.Pointer[func()]
	onReceive atomic.Pointer[func()]
	trace     atomic.Pointer[func(Status)]

	busyChecks    uint8
	abortWhenBusy bool
}

// New binds a driver to a bus port. The port's event delivery must be routed
// to HandleEvent before the driver is used.
func New(hw Hardware, cfg Config) *Driver {
	checks := cfg.BusBusyChecks
	if checks == 0 && !cfg.NoBusyChecks {
		checks = 16
	}
	d := &Driver{
		hw:            hw,
		busyChecks:    checks,
		abortWhenBusy: cfg.AbortWhenBusy,
	}
	noop := func() {}
	d.onRequest.Store(&noop)
	d.onReceive.Store(&noop)
	d.lastErr.Store(uint32(Success))
	return d
}

// SetAddress configures this device's own target address and whether it
// answers the general-call broadcast. Must not be called mid-transfer.
func (d *Driver) SetAddress(addr uint8, generalCall bool) {
	d.hw.SetOwnAddress(addr, generalCall)
}

// OnRequest installs the callback invoked when a controller reads from this
// device. The callback runs in handler context, must not block, and is
// expected to call Transmit exactly once. Safe to call while the handler is
// live; events delivered after the install see the new callback.
func (d *Driver) OnRequest(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	d.onRequest.Store(&fn)
}

// OnReceive installs the callback invoked after a controller write to this
// device completes. The callback runs in handler context and must not block;
// it inspects the received bytes via Buffer. Safe to call while the handler
// is live.
func (d *Driver) OnReceive(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	d.onReceive.Store(&fn)
}

// SetTrace installs an optional hook invoked with every raw status event
// before it is handled. The hook runs in handler context; nil disables it.
func (d *Driver) SetTrace(fn func(Status)) {
	if fn == nil {
		d.trace.Store(nil)
		return
	}
	d.trace.Store(&fn)
}

// LastError returns Success or the bus status code recorded by the most
// recently completed transfer.
func (d *Driver) LastError() Status { return Status(d.lastErr.Load()) }

// Busy reports whether a transfer is currently armed or in flight.
func (d *Driver) Busy() bool { return d.busy.Load() }

// Buffer exposes the shared buffer holding the bytes of the most recent
// target-role receive. Intended for use inside the OnReceive callback.
func (d *Driver) Buffer() []byte { return d.buf[:] }

// Write arbitrates for the bus and sends data to the 7-bit address. Address 0
// is the general-call broadcast. len(data) must be 1..BufferSize. With wait
// set the call returns once the transfer reaches a terminal state; otherwise
// it returns as soon as arbitration is requested and the transfer proceeds
// under interrupts. The outcome is reported by LastError either way.
func (d *Driver) Write(addr uint8, data []byte, wait bool) error {
	if len(data) == 0 {
		return ErrZeroLength
	}
	if len(data) > BufferSize {
		return ErrTooLong
	}
	d.waitIdle()

	copy(d.buf[:], data)
	d.cursor = 0
	d.count = uint16(len(data))
	d.rx = nil
	d.lastErr.Store(uint32(Success))
	d.busy.Store(true)
	d.target = addr<<1 | dirWrite

	if !d.confirmBusIdle() {
		return nil
	}
	d.hw.Start()
	if wait {
		d.waitIdle()
	}
	return nil
}

// Read arbitrates for the bus and reads len(dst) bytes from the 7-bit
// address into dst. Reads are not bounded by BufferSize and always block to
// completion. The final byte is taken on the non-acknowledge path so the peer
// sees the transfer end. The outcome is reported by LastError.
func (d *Driver) Read(addr uint8, dst []byte) error {
	if len(dst) == 0 {
		return ErrZeroLength
	}
	if len(dst) > maxReadLen {
		return ErrTooLong
	}
	d.waitIdle()

	d.rx = dst
	d.cursor = 0
	d.count = uint16(len(dst)) - 1 // acknowledgements before the final NACKed byte
	d.lastErr.Store(uint32(Success))
	d.busy.Store(true)
	d.target = addr<<1 | dirRead

	if !d.confirmBusIdle() {
		return nil
	}
	d.hw.Start()
	d.waitIdle()
	return nil
}

// Transmit loads the reply to a controller read. It is intended to be called
// exactly once, synchronously, from inside the OnRequest callback. If called
// more than once only the last call's data is clocked out: there is a single
// shared buffer.
func (d *Driver) Transmit(data []byte) error {
	if len(data) == 0 {
		return ErrZeroLength
	}
	if len(data) > BufferSize {
		return ErrTooLong
	}
	copy(d.buf[:], data)
	d.cursor = 0
	d.count = uint16(len(data))
	return nil
}

// waitIdle spins until no transfer is in flight. Yields so the handler side
// (the simulator on host builds) can make progress.
func (d *Driver) waitIdle() {
	for d.busy.Load() {
		runtime.Gosched()
	}
}

// confirmBusIdle samples SCL and SDA until they have been observed idle for
// the configured number of consecutive polls. In the default mode a non-idle
// sample restarts the countdown; in abort mode it records arbitration-lost
// and abandons the transfer. Reports whether arbitration may proceed.
func (d *Driver) confirmBusIdle() bool {
	n := d.busyChecks
	for n > 0 {
		scl, sda := d.hw.Lines()
		if scl && sda {
			n--
			continue
		}
		if d.abortWhenBusy {
			d.lastErr.Store(uint32(StatusArbLost))
			d.busy.Store(false)
			return false
		}
		n = d.busyChecks
		runtime.Gosched()
	}
	return true
}
