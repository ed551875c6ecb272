package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/risa-org/ramses2/gateway"
	"github.com/risa-org/ramses2/ramses"
)

// parseCmd replays a captured packet log through the same pipeline a
// live link feeds — callbacks fire, the handler prints every message.
var parseCmd = &cobra.Command{
	Use:   "parse [FILE]",
	Short: "Replay a captured packet log offline",
	Long: `Parse reads packet-log lines from FILE (or stdin) and runs them
through the message pipeline as if they had just arrived from the
radio. Lines may carry the packet log's leading timestamp or be bare
gateway frames; anything unparseable is skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}

		g, err := gateway.New(cfg, logger)
		if err != nil {
			return err
		}
		defer g.Close()

		if err := g.Open(func(msg *ramses.Message) {
			fmt.Println(msg.Format(g.DeviceName))
		}); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = g.Parse(ctx, in)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			// exhausting the input is the point; ^C mid-file is fine too
			return nil
		default:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
