// Package lobby assigns each of K identical bus devices a unique identity in
// [0, K) with no coordinator, using only the twi driver primitives. Each
// device scans candidate identities from K-1 downward, probing the mapped
// address with a 1-byte read: a clean read means the slot is owned, an
// address-NACK means it is vacant and can be claimed. A claimant then answers
// probes from later joiners and returns once every expected peer has polled
// it, which happens naturally as they execute their own downward scans.
package lobby

import (
	"errors"
	"runtime"
	"sync/atomic"

	"twilink-go/twi"
)

// MaxAddresses is the usable 7-bit address count: the standard reserves
// addresses 0-7 and 120-127, leaving 112 for devices.
const MaxAddresses = 112

// addrBase is the first non-reserved address; identity i maps to addrBase+i.
const addrBase = 0x08

// Complete is returned by Handshake when every identity was already claimed:
// an expected terminal state in steady-state operation, not an error. It lies
// outside the range of real identities and bus status codes' addresses.
const Complete = 0xFE

var ErrBadPlayerCount = errors.New("lobby: player count outside 1..112")

// AddressForID maps an identity in [0, MaxAddresses) to its bus address. It
// standardizes addresses so every participant probes the same slots.
func AddressForID(id uint8) uint8 { return addrBase + id }

// Lobby runs the enumeration protocol for one device.
type Lobby struct {
	d       *twi.Driver
	players uint8

	// polls counts how often this device has been probed since claiming;
	// bumped in handler context, watched by the spinning claimant.
	polls   atomic.Uint32
	scratch [1]byte
}

// New prepares a handshake among the given number of expected devices.
func New(d *twi.Driver, players uint8) (*Lobby, error) {
	if players == 0 || players > MaxAddresses {
		return nil, ErrBadPlayerCount
	}
	return &Lobby{d: d, players: players}, nil
}

// Handshake blocks until this device has claimed an identity and every
// expected peer has joined, then returns the identity. Returns Complete if
// all identities were already claimed. Like the driver's blocking transfers
// it has no timeout; a missing peer leaves it waiting.
func (l *Lobby) Handshake() uint8 {
	// The poll answerer is armed before any slot can be claimed: a prober
	// served by a no-op callback would count a probe the claimant never
	// sees, leaving it spinning.
	l.d.OnReceive(func() {})
	l.d.OnRequest(l.answerPoll)

	for i := int8(l.players) - 1; i >= 0; {
		var probe [1]byte
		l.d.Read(AddressForID(uint8(i)), probe[:])

		switch l.d.LastError() {
		case twi.StatusCtrlRxAddrNack:
			// Vacant: claim it and answer later joiners' probes.
			id := uint8(i)
			l.d.SetAddress(AddressForID(id), true)

			// Each device that joins after us probes our slot exactly once
			// on its way down, so the id doubles as the expected poll count.
			for l.polls.Load() < uint32(id) {
				runtime.Gosched()
			}
			return id
		case twi.Success:
			// Owned by someone else; try the next lower slot.
			i--
		default:
			// Arbitration loss or bus upset: retry the same candidate.
		}
	}
	return Complete
}

// Polls reports how many times this device has been probed since it claimed
// its identity.
func (l *Lobby) Polls() uint32 { return l.polls.Load() }

// answerPoll runs in handler context when a prober reads from our claimed
// address: count it and reply with the new count.
func (l *Lobby) answerPoll() {
	l.scratch[0] = uint8(l.polls.Add(1))
	l.d.Transmit(l.scratch[:])
}
