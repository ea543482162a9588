package twi

// Hardware is the register-level contract the state machine drives. Exactly one
// implementation exists per physical bus port: the AVR TWI registers on MCU
// builds (twi/avr) or a simulated port on the host (twisim).
//
// Every method is a single peripheral action. The handler responds to each bus
// event with exactly one of ReplyAck, ReplyNack, or Stop, optionally preceded
// by a data-latch access. Start is the only method called from outside the
// event handler; the rest execute in handler context.
type Hardware interface {
	// Start requests bus arbitration: the peripheral transmits a start
	// condition once the bus is free and then delivers StatusStart.
	Start()

	// ReplyAck releases the event with the acknowledge bit armed for the next
	// byte (or, as a target, keeps the port addressable).
	ReplyAck()

	// ReplyNack releases the event without arming the acknowledge bit,
	// signalling the final byte of a receive or releasing a lost bus.
	ReplyNack()

	// Stop asserts a stop condition. Completion is observed via StopPending;
	// the stop path is the one place the handler is permitted to spin.
	Stop()

	// StopPending reports whether a requested stop is still in flight.
	StopPending() bool

	// ReadData reads the hardware data latch (the byte just clocked in).
	ReadData() byte

	// WriteData loads the hardware data latch (the byte to clock out next).
	WriteData(b byte)

	// Lines samples the bus: true means the line is electrically high (idle).
	Lines() (scl, sda bool)

	// SetOwnAddress configures the 7-bit address this port answers to as a
	// target, and whether it also answers the general-call broadcast.
	SetOwnAddress(addr uint8, generalCall bool)
}
