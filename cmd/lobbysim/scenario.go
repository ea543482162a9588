package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/rs/zerolog"

	"twilink-go/twi"
)

// runScript completes the handshake, then drives scripted transfers from an
// extra operator device attached to the same simulated bus.
//
// Script grammar, one command per line (# starts a comment):
//
//	write <addr> <byte>...   controller write to addr
//	gcall <byte>...          general-call broadcast write
//	read <addr> <n>          controller read of n bytes
//	sleep <ms>               pause the script
func runScript(log zerolog.Logger, cfg Config, path string) error {
	bus, err := buildLobby(log, cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	op := bus.AddDevice(twi.Config{
		BusBusyChecks: cfg.BusBusyChecks,
		AbortWhenBusy: cfg.AbortWhenBusy,
	})

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args, err := shlex.Split(line)
		if err != nil {
			return fmt.Errorf("script line %d: %w", lineNo, err)
		}
		if err := execCommand(log, op, args); err != nil {
			return fmt.Errorf("script line %d: %w", lineNo, err)
		}
	}
	return sc.Err()
}

func execCommand(log zerolog.Logger, op *twi.Driver, args []string) error {
	switch args[0] {
	case "write", "gcall":
		rest := args[1:]
		var addr uint8
		if args[0] == "write" {
			if len(rest) < 2 {
				return fmt.Errorf("write needs an address and data")
			}
			a, err := parseByte(rest[0])
			if err != nil {
				return err
			}
			addr, rest = a, rest[1:]
		} else if len(rest) < 1 {
			return fmt.Errorf("gcall needs data")
		}
		data := make([]byte, len(rest))
		for i, s := range rest {
			b, err := parseByte(s)
			if err != nil {
				return err
			}
			data[i] = b
		}
		if err := op.Write(addr, data, true); err != nil {
			return err
		}
		log.Info().Uint8("addr", addr).Hex("data", data).
			Stringer("result", op.LastError()).Msg(args[0])
		return nil

	case "read":
		if len(args) != 3 {
			return fmt.Errorf("read needs an address and a byte count")
		}
		addr, err := parseByte(args[1])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[2])
		if err != nil || n <= 0 {
			return fmt.Errorf("bad byte count %q", args[2])
		}
		dst := make([]byte, n)
		if err := op.Read(addr, dst); err != nil {
			return err
		}
		log.Info().Uint8("addr", addr).Hex("data", dst).
			Stringer("result", op.LastError()).Msg("read")
		return nil

	case "sleep":
		if len(args) != 2 {
			return fmt.Errorf("sleep needs a duration in ms")
		}
		ms, err := strconv.Atoi(args[1])
		if err != nil || ms < 0 {
			return fmt.Errorf("bad sleep %q", args[1])
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad byte %q", s)
	}
	return uint8(v), nil
}
