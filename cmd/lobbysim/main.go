// lobbysim runs simulated two-wire devices through the lobby handshake and
// optional scripted transfers, printing every bus event it observes.
package main

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"twilink-go/lobby"
	"twilink-go/trace"
	"twilink-go/twi"
	"twilink-go/twisim"
)

func initLogger() zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Str("app", "lobbysim").Logger()
}

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "lobbysim",
		Short: "simulate a lobby of two-wire devices",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "TOML config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the handshake across simulated devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			return runLobby(initLogger(), cfg)
		},
	}

	scriptCmd := &cobra.Command{
		Use:   "script <file>",
		Short: "run the handshake, then execute scripted transfers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			return runScript(initLogger(), cfg, args[0])
		},
	}

	root.AddCommand(runCmd, scriptCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildLobby wires cfg.Devices drivers onto one simulated bus with a shared
// trace hub and runs their handshakes, staggered so joins stay cooperative.
func buildLobby(log zerolog.Logger, cfg Config) (*twisim.Bus, error) {
	bus := twisim.New()
	hub := trace.NewHub(cfg.TraceQueue)
	drvCfg := twi.Config{
		BusBusyChecks: cfg.BusBusyChecks,
		AbortWhenBusy: cfg.AbortWhenBusy,
	}

	sub := hub.Subscribe()
	go func() {
		for ev := range sub.Channel() {
			log.Debug().Str("dev", ev.Device).Stringer("status", ev.Status).Msg("bus event")
		}
	}()

	lobbies := make([]*lobby.Lobby, cfg.Devices)
	for i := range lobbies {
		d := bus.AddDevice(drvCfg)
		d.SetTrace(hub.Feed(deviceName(i)))
		l, err := lobby.New(d, uint8(cfg.Devices))
		if err != nil {
			return nil, err
		}
		lobbies[i] = l
	}
	bus.Start()

	ids := make([]uint8, cfg.Devices)
	var wg sync.WaitGroup
	for i, l := range lobbies {
		wg.Add(1)
		go func(i int, l *lobby.Lobby) {
			defer wg.Done()
			ids[i] = l.Handshake()
		}(i, l)
		time.Sleep(time.Duration(cfg.JoinStaggerMs) * time.Millisecond)
	}
	wg.Wait()

	for i, id := range ids {
		log.Info().Str("dev", deviceName(i)).Uint8("id", id).
			Uint8("addr", lobby.AddressForID(id)).Msg("claimed identity")
	}
	return bus, nil
}

func runLobby(log zerolog.Logger, cfg Config) error {
	bus, err := buildLobby(log, cfg)
	if err != nil {
		return err
	}
	defer bus.Close()
	log.Info().Int("devices", cfg.Devices).Msg("handshake complete")
	return nil
}

func deviceName(i int) string {
	return "dev" + strconv.Itoa(i)
}
