package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/risa-org/ramses2/gateway"
	"github.com/risa-org/ramses2/ramses"
)

var executeCmd string

// monitorCmd watches a live system: every message the radio hears is
// printed, one line each, with friendly device names when known.
var monitorCmd = &cobra.Command{
	Use:   "monitor [PORT]",
	Short: "Watch live traffic from a radio gateway",
	Long: `Monitor opens the gateway port and prints every message the radio
hears. The port may be a serial device (/dev/ttyUSB0, COM3), a
tcp://host:port ser2net bridge, or a ws:// WebSocket bridge; when
omitted, the configured port is used.

With --execute-cmd, one command is sent after startup and its reply
printed when it arrives, for example:

  ramses2 monitor /dev/ttyUSB0 --execute-cmd "RQ 01:145038 1F09 00"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			cfg.Port = args[0]
		}

		g, err := gateway.New(cfg, logger)
		if err != nil {
			return err
		}
		defer g.Close()

		handler := func(msg *ramses.Message) {
			fmt.Println(msg.Format(g.DeviceName))
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := g.Start(ctx, handler); err != nil {
			return err
		}

		if executeCmd != "" {
			if err := sendExecuteCmd(ctx, g, executeCmd); err != nil {
				return err
			}
		}

		err = g.Run(ctx)
		switch {
		case err == nil, errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			// the three expected ways a monitor ends
			return nil
		default:
			return err
		}
	},
}

// sendExecuteCmd parses a "VERB DEST CODE [PAYLOAD]" string, sends it,
// and prints the correlated reply (or a timeout notice) when it comes.
func sendExecuteCmd(ctx context.Context, g *gateway.Gateway, s string) error {
	cmd, err := parseCmdString(s)
	if err != nil {
		return fmt.Errorf("--execute-cmd: %w", err)
	}

	return g.SendCmd(ctx, cmd, gateway.WithReply(
		func(msg *ramses.Message, expired bool) {
			if expired {
				fmt.Fprintf(os.Stderr, "no reply to %s within the timeout\n", cmd)
				return
			}
			fmt.Printf("reply: %s\n", msg.Format(g.DeviceName))
		}, 10*time.Second))
}

// parseCmdString turns "RQ 01:145038 1F09 00" into a Command.
// Operator-entered commands jump the queue — waiting behind routine
// polling would make the tool feel broken.
func parseCmdString(s string) (*ramses.Command, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 && len(fields) != 4 {
		return nil, fmt.Errorf("want \"VERB DEST CODE [PAYLOAD]\", got %q", s)
	}

	verb, err := ramses.ParseVerb(fields[0])
	if err != nil {
		return nil, err
	}
	dest, err := ramses.ParseAddress(fields[1])
	if err != nil {
		return nil, err
	}
	payload := ""
	if len(fields) == 4 {
		payload = fields[3]
	}
	return ramses.NewCommand(verb, fields[2], dest, payload,
		ramses.WithPriority(ramses.PriorityHigh))
}

func init() {
	monitorCmd.Flags().StringVar(&executeCmd, "execute-cmd", "",
		`send one command after startup, e.g. "RQ 01:145038 1F09 00"`)
	rootCmd.AddCommand(monitorCmd)
}
