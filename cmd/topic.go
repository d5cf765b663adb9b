package cmd

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/OliveiraNt/kmt/internal/application"
	"github.com/OliveiraNt/kmt/internal/domain"
	"github.com/spf13/cobra"
)

func newTopicCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Create, delete and list topics",
	}
	cmd.AddCommand(
		newTopicListCmd(opts),
		newTopicCreateCmd(opts),
		newTopicDeleteCmd(opts),
		newTopicDescribeCmd(opts),
	)
	return cmd
}

func newTopicListCmd(opts *rootOptions) *cobra.Command {
	var internal bool
	cmd := &cobra.Command{
		Use:   "list <broker>",
		Short: "List the topics of a broker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.bootstrap()
			defer a.close()

			topics, err := a.coord.Topics.ListTopics(cmd.Context(), args[0], internal)
			if err != nil {
				return fmt.Errorf("failed to list topics: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(topics) == 0 {
				fmt.Fprintln(out, "No topics.")
				return nil
			}
			names := make([]string, 0, len(topics))
			for name := range topics {
				names = append(names, name)
			}
			sort.Strings(names)

			fmt.Fprintf(out, "%-40s  %s\n", "TOPIC", "PARTITIONS")
			for _, name := range names {
				fmt.Fprintf(out, "%-40s  %d\n", name, topics[name])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&internal, "internal", false, "Include internal topics")
	return cmd
}

func newTopicCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		from        string
		partitions  int32
		replication int16
		entries     map[string]string
	)
	cmd := &cobra.Command{
		Use:   "create [<broker> <topic>]",
		Short: "Create a topic on a broker, inline or from a topic config (--from)",
		Args: func(cmd *cobra.Command, args []string) error {
			if from != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.bootstrap()
			defer a.close()
			out := cmd.OutOrStdout()

			var broker, topic string
			var err error
			if from != "" {
				tc, ok := a.coord.Config().Topic(from)
				if !ok {
					return fmt.Errorf("%w: %q", application.ErrTopicConfigNotFound, from)
				}
				broker, topic = tc.Broker, application.RequestFromConfig(tc).Name
				err = a.coord.Topics.CreateTopicFromConfig(cmd.Context(), from)
			} else {
				broker, topic = args[0], args[1]
				req := domain.CreateTopicRequest{
					Name:              topic,
					NumPartitions:     partitions,
					ReplicationFactor: replication,
				}
				if len(entries) > 0 {
					req.Configs = make(map[string]*string, len(entries))
					for k, v := range entries {
						req.Configs[k] = &v
					}
				}
				err = a.coord.Topics.CreateTopic(cmd.Context(), broker, req)
			}

			if errors.Is(err, domain.ErrTimeout) {
				// Wait for the follow-up describe so the outcome can be reported.
				a.coord.Topics.Wait()
				fmt.Fprintf(out, "Create of %q timed out; topic state is now %s.\n", topic, a.coord.Topics.TopicState(broker, topic))
				return err
			}
			if err != nil {
				return fmt.Errorf("failed to create topic: %w", err)
			}
			fmt.Fprintf(out, "Topic %q created on %s.\n", topic, broker)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Name of a topic config to create")
	cmd.Flags().Int32Var(&partitions, "partitions", 1, "Number of partitions")
	cmd.Flags().Int16Var(&replication, "replication-factor", 1, "Replication factor")
	cmd.Flags().StringToStringVar(&entries, "config-entry", nil, "Topic config entries (key=value)")
	return cmd
}

func newTopicDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <broker> <topic>",
		Short: "Delete a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.bootstrap()
			defer a.close()
			out := cmd.OutOrStdout()

			broker, topic := args[0], args[1]
			err := a.coord.Topics.DeleteTopic(cmd.Context(), broker, topic)
			if errors.Is(err, domain.ErrTimeout) {
				a.coord.Topics.Wait()
				fmt.Fprintf(out, "Delete of %q timed out; topic state is now %s.\n", topic, a.coord.Topics.TopicState(broker, topic))
				return err
			}
			if err != nil {
				return fmt.Errorf("failed to delete topic: %w", err)
			}
			fmt.Fprintf(out, "Topic %q deleted from %s.\n", topic, broker)
			return nil
		},
	}
}

func newTopicDescribeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <broker> <topic>",
		Short: "Show a topic's partitions, config entries and consumers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := opts.bootstrap()
			defer a.close()

			d, err := a.coord.Topics.DescribeTopic(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to describe topic: %w", err)
			}
			printTopic(cmd, d)
			return nil
		},
	}
}

func printTopic(cmd *cobra.Command, d domain.TopicDetails) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Topic:      %s\n", d.Name)
	fmt.Fprintf(out, "Partitions: %d\n\n", d.Partitions)

	keys := make([]string, 0, len(d.Config))
	for k := range d.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONFIG\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, d.Config[k])
	}
	_ = tw.Flush()
	fmt.Fprintln(out)

	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tPARTITION\tMEMBER\tCLIENT\tHOST\tCOMMITTED")
	for _, c := range d.Consumers {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\n", c.Group, c.Partition, c.MemberID, c.ClientID, c.ClientHost, c.Committed)
	}
	_ = tw.Flush()
}
