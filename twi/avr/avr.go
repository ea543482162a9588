//go:build tinygo && avr

// Package avr adapts the ATmega TWI peripheral to the twi.Hardware contract
// and routes the TWI interrupt vector to the driver's event handler. SCL/SDA
// idle sampling uses PD0/PD1, the TWI pins on the ATmega32U4.
package avr

import (
	"device/avr"
	"machine"
	"runtime/interrupt"

	"twilink-go/twi"
)

const (
	ctrlBase  = avr.TWCR_TWEN | avr.TWCR_TWIE
	replyAck  = avr.TWCR_TWINT | ctrlBase | avr.TWCR_TWEA
	replyNack = avr.TWCR_TWINT | ctrlBase
	stopCond  = avr.TWCR_TWINT | ctrlBase | avr.TWCR_TWSTO | avr.TWCR_TWEA
	startCond = ctrlBase | avr.TWCR_TWSTA
)

// HW is the single TWI port of the MCU.
type HW struct{}

var driver *twi.Driver

// Init powers on the TWI peripheral, programs the bit-rate divisor for the
// requested bus frequency, hooks the interrupt vector, and returns the driver
// bound to the port. Must be called once before any bus operation, and again
// if host bring-up disabled the peripheral (board boot code commonly does).
func Init(frequencyHz uint32, cfg twi.Config) *twi.Driver {
	// Clear the TWI bit in the power reduction register.
	avr.PRR0.ClearBits(avr.PRR0_PRTWI)

	avr.TWSR.Set(0) // clear prescaler bits so status reads need no mask
	avr.TWBR.Set(uint8((machine.CPUFrequency()/frequencyHz - 16) / 2))
	avr.TWCR.Set(ctrlBase | avr.TWCR_TWEA)

	driver = twi.New(HW{}, cfg)
	interrupt.New(avr.IRQ_TWI, handleTWI)
	return driver
}

func handleTWI(interrupt.Interrupt) {
	driver.HandleEvent(twi.Status(avr.TWSR.Get()))
}

func (HW) Start()            { avr.TWCR.Set(startCond) }
func (HW) ReplyAck()         { avr.TWCR.Set(replyAck) }
func (HW) ReplyNack()        { avr.TWCR.Set(replyNack) }
func (HW) Stop()             { avr.TWCR.Set(stopCond) }
func (HW) StopPending() bool { return avr.TWCR.HasBits(avr.TWCR_TWSTO) }
func (HW) ReadData() byte    { return avr.TWDR.Get() }
func (HW) WriteData(b byte)  { avr.TWDR.Set(b) }

func (HW) Lines() (scl, sda bool) {
	pins := avr.PIND.Get()
	return pins&0x01 != 0, pins&0x02 != 0
}

func (HW) SetOwnAddress(addr uint8, generalCall bool) {
	v := addr << 1
	if generalCall {
		v |= 1
	}
	avr.TWAR.Set(v)
}
