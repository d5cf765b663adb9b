package cmd

import (
	"fmt"
	"sort"

	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/invopop/ctxi18n/i18n"
	"github.com/spf13/cobra"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var (
		key     string
		value   string
		headers map[string]string
		repeat  int
	)
	cmd := &cobra.Command{
		Use:   "send <sender>",
		Short: "Send messages through a configured sender",
		Long: `Send one message through the named sender. With --repeat the value is
rendered as a template for each message ({{.Index}}, {{.Total}}, {{.Timestamp}}, {{.Key}}).
Empty --value and --key fall back to the sender's configured content and key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.bootstrap()
			defer a.close()
			out := cmd.OutOrStdout()

			snd, err := a.coord.Sessions.StartSender(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to start sender: %w", err)
			}
			defer func() {
				if err := a.coord.Sessions.Stop(cmd.Context(), snd.ID()); err != nil {
					utils.Logger.Warn("stop sender failed", "sender", args[0], "err", err)
				}
			}()

			msg := domain.OutgoingMessage{Key: key, Value: value, Headers: sortedHeaders(headers)}
			if !cmd.Flags().Changed("repeat") {
				res, err := snd.Send(cmd.Context(), msg)
				if err != nil {
					return fmt.Errorf("failed to send: %w", err)
				}
				printSendResult(cmd, res)
				return nil
			}

			results, err := snd.SendRepeated(cmd.Context(), msg, repeat)
			for _, res := range results {
				printSendResult(cmd, res)
			}
			fmt.Fprintf(out, "%d message(s) acknowledged.\n", len(results))
			if err != nil {
				return fmt.Errorf("some sends failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Message key")
	cmd.Flags().StringVar(&value, "value", "", "Message value (a template with --repeat)")
	cmd.Flags().StringToStringVar(&headers, "header", nil, "Message headers (key=value)")
	cmd.Flags().IntVar(&repeat, "repeat", 0, "Send this many messages; 0 uses the sender's repeat count")
	return cmd
}

func printSendResult(cmd *cobra.Command, res domain.SendResult) {
	if res.Simulated {
		fmt.Fprintf(cmd.OutOrStdout(), "Simulated send to %s, nothing produced\n", res.Topic)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), localize(cmd.Context(), "events.send_result", i18n.M{
		"topic":     res.Topic,
		"partition": res.Partition,
		"offset":    res.Offset,
	}))
}

// sortedHeaders keeps header order stable; flag maps have none.
func sortedHeaders(m map[string]string) []domain.Header {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, domain.Header{Key: k, Value: m[k]})
	}
	return out
}
