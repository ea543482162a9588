package twi

// Status is a raw two-wire hardware status code as reported by the peripheral
// after each bus transition, plus the out-of-band Success sentinel. The
// hardware values are the TWI-standard codes with prescaler bits cleared.
type Status uint8

const (
	// Bus / start conditions.
	StatusBusError Status = 0x00
	StatusStart    Status = 0x08
	StatusRepStart Status = 0x10

	// Controller transmit.
	StatusCtrlTxAddrAck  Status = 0x18
	StatusCtrlTxAddrNack Status = 0x20
	StatusCtrlTxDataAck  Status = 0x28
	StatusCtrlTxDataNack Status = 0x30

	// Arbitration lost, shared between controller transmit and receive.
	StatusArbLost Status = 0x38

	// Controller receive.
	StatusCtrlRxAddrAck  Status = 0x40
	StatusCtrlRxAddrNack Status = 0x48
	StatusCtrlRxDataAck  Status = 0x50
	StatusCtrlRxDataNack Status = 0x58

	// Target receive.
	StatusTgtRxAddrAck         Status = 0x60
	StatusTgtRxArbLostAddrAck  Status = 0x68
	StatusTgtRxGCallAck        Status = 0x70
	StatusTgtRxArbLostGCallAck Status = 0x78
	StatusTgtRxDataAck         Status = 0x80
	StatusTgtRxDataNack        Status = 0x88
	StatusTgtRxGCallDataAck    Status = 0x90
	StatusTgtRxGCallDataNack   Status = 0x98
	StatusTgtRxStop            Status = 0xA0

	// Target transmit.
	StatusTgtTxAddrAck        Status = 0xA8
	StatusTgtTxArbLostAddrAck Status = 0xB0
	StatusTgtTxDataAck        Status = 0xB8
	StatusTgtTxDataNack       Status = 0xC0
	StatusTgtTxLastData       Status = 0xC8

	// StatusNoInfo means no relevant state information is available.
	StatusNoInfo Status = 0xF8

	// Success is not a hardware code: it is the LastError sentinel meaning the
	// most recent transfer completed without error.
	Success Status = 0xFF
)

// IsError reports whether s represents a failed transfer outcome rather than
// the Success sentinel.
func (s Status) IsError() bool { return s != Success }

// String names the status for logs and test output.
func (s Status) String() string {
	switch s {
	case StatusBusError:
		return "bus-error"
	case StatusStart:
		return "start"
	case StatusRepStart:
		return "rep-start"
	case StatusCtrlTxAddrAck:
		return "ctrl-tx-addr-ack"
	case StatusCtrlTxAddrNack:
		return "ctrl-tx-addr-nack"
	case StatusCtrlTxDataAck:
		return "ctrl-tx-data-ack"
	case StatusCtrlTxDataNack:
		return "ctrl-tx-data-nack"
	case StatusArbLost:
		return "arb-lost"
	case StatusCtrlRxAddrAck:
		return "ctrl-rx-addr-ack"
	case StatusCtrlRxAddrNack:
		return "ctrl-rx-addr-nack"
	case StatusCtrlRxDataAck:
		return "ctrl-rx-data-ack"
	case StatusCtrlRxDataNack:
		return "ctrl-rx-data-nack"
	case StatusTgtRxAddrAck:
		return "tgt-rx-addr-ack"
	case StatusTgtRxArbLostAddrAck:
		return "tgt-rx-arblost-addr-ack"
	case StatusTgtRxGCallAck:
		return "tgt-rx-gcall-ack"
	case StatusTgtRxArbLostGCallAck:
		return "tgt-rx-arblost-gcall-ack"
	case StatusTgtRxDataAck:
		return "tgt-rx-data-ack"
	case StatusTgtRxDataNack:
		return "tgt-rx-data-nack"
	case StatusTgtRxGCallDataAck:
		return "tgt-rx-gcall-data-ack"
	case StatusTgtRxGCallDataNack:
		return "tgt-rx-gcall-data-nack"
	case StatusTgtRxStop:
		return "tgt-rx-stop"
	case StatusTgtTxAddrAck:
		return "tgt-tx-addr-ack"
	case StatusTgtTxArbLostAddrAck:
		return "tgt-tx-arblost-addr-ack"
	case StatusTgtTxDataAck:
		return "tgt-tx-data-ack"
	case StatusTgtTxDataNack:
		return "tgt-tx-data-nack"
	case StatusTgtTxLastData:
		return "tgt-tx-last-data"
	case StatusNoInfo:
		return "no-info"
	case Success:
		return "success"
	}
	return "unknown"
}
