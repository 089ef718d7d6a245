package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BioHazard786/warpchat/internal/config"
	"github.com/BioHazard786/warpchat/internal/dns"
	"github.com/BioHazard786/warpchat/internal/logging"
	"github.com/BioHazard786/warpchat/internal/session"
	"github.com/BioHazard786/warpchat/internal/signaling"
	"github.com/BioHazard786/warpchat/internal/ui"
	"github.com/BioHazard786/warpchat/internal/webrtc"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flagServer   string
	flagName     string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagPlain    bool
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"c"},
	Short:   "Join the chat",
	Long: `Connect to a coordinator and chat with other participants over direct
WebRTC links. Use /connect <name> to link with someone and /help for commands.

Examples:
  warpchat chat --name Alice
  warpchat chat --server wss://chat.example.com/ws --name Bob
  warpchat chat --turn turn.example.com --turn-user bob --turn-pass secret --relay
  warpchat chat --plain`,
	RunE: func(cmd *cobra.Command, args []string) error {
		closeLog, err := logging.Init(slog.LevelError)
		if err != nil {
			return err
		}
		defer closeLog()

		cfg, err := config.Load(config.Options{
			ConfigPath: flagConfig,
			ServerURL:  flagServer,
			Name:       flagName,
			STUNServer: flagSTUN,
			TURNServer: flagTURN,
			TURNUser:   flagTURNUser,
			TURNPass:   flagTURNPass,
			ForceRelay: flagRelay,
		})
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return chat(cmd.Context(), cfg, slog.Default())
	},
}

func init() {
	f := chatCmd.Flags()
	f.StringVarP(&flagServer, "server", "s", "", "Coordinator websocket URL")
	f.StringVarP(&flagName, "name", "n", "", "Display name (assigned by the coordinator if empty)")
	f.StringVar(&flagSTUN, "stun", "", "Comma separated STUN servers")
	f.StringVar(&flagTURN, "turn", "", "TURN server host[:port]")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	f.BoolVar(&flagRelay, "relay", false, "Send all traffic through the TURN server")
	f.BoolVar(&flagPlain, "plain", false, "Line mode instead of the full-screen interface")
}

func chat(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	sp := ui.RunSpinner("Connecting to " + cfg.ServerURL + "...")
	client := signaling.NewClient(cfg.ServerURL, dns.NewResolver(), logger.With("component", "signaling"))
	if err := client.Connect(ctx); err != nil {
		sp.Error("Could not reach the coordinator")
		return err
	}
	sp.Success("Connected to " + cfg.ServerURL)
	if cfg.UseRelayOnly() {
		ui.PrintInfo("Relay mode: all traffic goes through " + cfg.TURNServer)
	}

	factory := webrtc.NewFactory(webrtc.Configuration(cfg), logger.With("component", "webrtc"))
	handler := signaling.NewHandler(client, logger.With("component", "signaling"))
	s := session.New(client, handler, factory, cfg.Name, logger.With("component", "session"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	var err error
	if flagPlain || !isTerminal() {
		err = ui.RunPlain(ctx, s, ui.PlainOptions{Name: cfg.Name, HistoryFile: historyFile()})
	} else {
		err = ui.RunChat(ctx, s, cfg.Name)
	}

	cancel()
	if runErr := <-runDone; err == nil {
		err = runErr
	}
	return err
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// historyFile is where line mode keeps its input history. Empty disables it.
func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "warpchat")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}
