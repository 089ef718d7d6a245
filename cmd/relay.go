package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BioHazard786/warpchat/internal/config"
	"github.com/BioHazard786/warpchat/internal/logging"
	"github.com/BioHazard786/warpchat/internal/relay"
	"github.com/BioHazard786/warpchat/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagRelayListen   string
	flagRelayPublicIP string
	flagRelayRealm    string
	flagRelayUsers    []string
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run a TURN relay for participants behind strict NATs",
	Long: `Run a TURN relay on UDP and TCP. Point participants at it with --turn,
--turn-user and --turn-pass, and add --relay to force all traffic through it.

Examples:
  warpchat relay --public-ip 203.0.113.7 --user alice=secret
  warpchat relay --listen 0.0.0.0:3478 --public-ip 203.0.113.7 --user a=x --user b=y`,
	RunE: func(cmd *cobra.Command, args []string) error {
		closeLog, err := logging.Init(slog.LevelInfo)
		if err != nil {
			return err
		}
		defer closeLog()

		cfg, err := config.Load(config.Options{
			ConfigPath:    flagConfig,
			RelayListen:   flagRelayListen,
			RelayPublicIP: flagRelayPublicIP,
			RelayRealm:    flagRelayRealm,
			RelayUsers:    flagRelayUsers,
		})
		if err != nil {
			return err
		}
		if err := cfg.ValidateRelay(); err != nil {
			return err
		}

		logger := slog.Default().With("component", "relay")
		s, err := relay.Start(cfg.Relay, logger)
		if err != nil {
			return err
		}
		defer s.Close()

		ui.PrintSuccess(fmt.Sprintf("Relay listening on %s (udp+tcp), advertising %s", s.Addr(), cfg.Relay.PublicIP))

		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-cmd.Context().Done():
				logger.Info("shutting down relay")
				return nil
			case <-ticker.C:
				logger.Debug("relay allocations", "count", s.Allocations())
			}
		}
	},
}

func init() {
	f := relayCmd.Flags()
	f.StringVar(&flagRelayListen, "listen", "", "Listen address (default 0.0.0.0:3478)")
	f.StringVar(&flagRelayPublicIP, "public-ip", "", "Public IP advertised for relayed addresses")
	f.StringVar(&flagRelayRealm, "realm", "", "TURN realm (default warpchat)")
	f.StringArrayVar(&flagRelayUsers, "user", nil, "Credentials as name=password, repeatable")
}
