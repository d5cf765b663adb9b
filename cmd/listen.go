package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/invopop/ctxi18n/i18n"
	"github.com/spf13/cobra"
)

func newListenCmd(opts *rootOptions) *cobra.Command {
	var maxMessages int
	cmd := &cobra.Command{
		Use:   "listen <listener>",
		Short: "Print messages received by a configured listener until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := opts.bootstrap()
			defer a.close()
			out := cmd.OutOrStdout()

			l, err := a.coord.Sessions.StartListener(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to start listener: %w", err)
			}
			defer func() {
				if err := a.coord.Sessions.Stop(context.Background(), l.ID()); err != nil {
					utils.Logger.Warn("stop listener failed", "listener", args[0], "err", err)
				}
			}()
			fmt.Fprintf(out, "Listening on %s/%s as %s. Press Ctrl+C to stop.\n", l.Broker(), l.Topic(), l.Name())

			received := 0
			for {
				select {
				case <-ctx.Done():
					return nil
				case m := <-l.Messages():
					printMessage(cmd, m)
					received++
					if maxMessages > 0 && received >= maxMessages {
						return nil
					}
				case <-l.Done():
					if cause := l.Cause(); cause != nil && !errors.Is(cause, context.Canceled) {
						return fmt.Errorf("listener stopped: %w", cause)
					}
					return nil
				}
			}
		},
	}
	cmd.Flags().IntVar(&maxMessages, "max", 0, "Stop after this many messages; 0 means no limit")
	return cmd
}

func printMessage(cmd *cobra.Command, m domain.Message) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, localize(cmd.Context(), "events.message", i18n.M{
		"topic":     m.Topic,
		"partition": m.Partition,
		"offset":    m.Offset,
		"key":       m.Key,
	}))
	for _, h := range m.Headers {
		fmt.Fprintf(out, "  %s: %s\n", h.Key, h.Value)
	}
	fmt.Fprintf(out, "  %s\n", m.Value)
}
