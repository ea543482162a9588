// Package twidrv adapts a twi.Driver to the tinygo.org/x/drivers I2C Tx
// shape so stock TinyGo device drivers can run over this bus.
//
// NOTE: the underlying driver issues a stop between the write and read halves
// of a combined transaction rather than a repeated start. Devices that
// require write-then-repeated-start-read without a bus release (some sensors
// guard their result registers this way) cannot sit on this adapter.
package twidrv

import (
	"tinygo.org/x/drivers"

	"twilink-go/twi"
)

var _ drivers.I2C = I2C{}

// BusError wraps the status code of a failed transfer so callers can both
// test with errors.As and recover the raw code.
type BusError struct {
	Status twi.Status
}

func (e BusError) Error() string { return "twidrv: " + e.Status.String() }

// I2C implements the drivers.I2C contract over a twi.Driver.
type I2C struct {
	d *twi.Driver
}

func New(d *twi.Driver) I2C { return I2C{d: d} }

// Tx performs a blocking write of w then a read into r at addr. Either slice
// may be empty. The first failing half reports its bus status.
func (b I2C) Tx(addr uint16, w, r []byte) error {
	if len(w) > 0 {
		if err := b.d.Write(uint8(addr), w, true); err != nil {
			return err
		}
		if st := b.d.LastError(); st.IsError() {
			return BusError{Status: st}
		}
	}
	if len(r) > 0 {
		if err := b.d.Read(uint8(addr), r); err != nil {
			return err
		}
		if st := b.d.LastError(); st.IsError() {
			return BusError{Status: st}
		}
	}
	return nil
}
