// twitap decodes a live stream of two-wire status bytes from a serial port.
// A device streams one raw status byte per bus event from its driver trace
// hook (over its UART, not the two-wire bus under observation); twitap names
// each event as it arrives.
package main

import (
	"flag"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"twilink-go/twi"
)

func main() {
	device := flag.String("device", "/dev/ttyACM0", "serial device to read from")
	baud := flag.Int("baud", 115200, "baud rate")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Str("app", "twitap").Logger()

	port, err := serial.OpenPort(&serial.Config{Name: *device, Baud: *baud})
	if err != nil {
		log.Fatal().Err(err).Str("device", *device).Msg("open serial port")
	}
	defer port.Close()

	log.Info().Str("device", *device).Int("baud", *baud).Msg("listening")

	buf := make([]byte, 64)
	for {
		n, err := port.Read(buf)
		if err != nil {
			if err == io.EOF {
				continue // read timeout with no data
			}
			log.Fatal().Err(err).Msg("serial read")
		}
		for _, b := range buf[:n] {
			st := twi.Status(b)
			ev := log.Info()
			if st == twi.StatusBusError || st == twi.StatusNoInfo {
				ev = log.Warn()
			}
			ev.Uint8("code", b).Stringer("status", st).Msg("bus event")
		}
	}
}
