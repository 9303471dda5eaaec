package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func newChannelCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Inspect the send channel",
	}

	var open bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Report whether the configured channel is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.broadcaster.ChannelStatus(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "channel=%s dry_run=%v ready=%v\n", st.Channel, st.DryRun, st.Ready)
			if st.Error != "" {
				fmt.Fprintf(out, "error: %s\n", st.Error)
			}

			if open {
				p, ok := a.live.(pinger)
				if !ok {
					return fmt.Errorf("channel %s cannot be opened", a.live.Name())
				}
				if err := p.Ping(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "opened whatsapp://")
			}
			return nil
		},
	}
	check.Flags().BoolVar(&open, "open", false, "also open the bare whatsapp:// link")

	cmd.AddCommand(check)
	return cmd
}
