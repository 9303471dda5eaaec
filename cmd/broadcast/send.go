package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/dispatch"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/personalize"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/service"
)

type sendFlags struct {
	template      string
	templateFile  string
	audience      string
	interval      float64
	jitter        bool
	dryRun        bool
	noPersonalize bool
}

func newSendCmd(c *cli) *cobra.Command {
	var f sendFlags

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run one broadcast in the foreground; Ctrl-C cancels the rest of the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return runSend(cmd.Context(), a.broadcaster, req, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&f.template, "template", "t", "", "message template with {token} placeholders")
	cmd.Flags().StringVar(&f.templateFile, "template-file", "", "read the template from a file")
	cmd.Flags().StringVarP(&f.audience, "audience", "a", "all", "all, morning, evening, full-time or due")
	cmd.Flags().Float64Var(&f.interval, "interval", 0, "seconds between messages (default from SEND_INTERVAL_SECONDS)")
	cmd.Flags().BoolVar(&f.jitter, "jitter", true, "randomize the interval")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "simulate sends without opening WhatsApp")
	cmd.Flags().BoolVar(&f.noPersonalize, "no-personalize", false, "send the template verbatim")
	return cmd
}

func (f sendFlags) request(cmd *cobra.Command) (service.Request, error) {
	tmpl := f.template
	if f.templateFile != "" {
		b, err := os.ReadFile(f.templateFile)
		if err != nil {
			return service.Request{}, fmt.Errorf("read template: %w", err)
		}
		tmpl = string(b)
	}

	req := service.Request{
		Template:    tmpl,
		Personalize: !f.noPersonalize,
		Audience:    f.audience,
		DryRun:      f.dryRun,
	}
	if cmd.Flags().Changed("interval") {
		v := f.interval
		req.IntervalSeconds = &v
	}
	if cmd.Flags().Changed("jitter") {
		v := f.jitter
		req.Jitter = &v
	}
	return req, nil
}

func runSend(ctx context.Context, b *service.Broadcaster, req service.Request, out io.Writer) error {
	if req.Personalize {
		if unknown := personalize.UnknownTokens(req.Template); len(unknown) > 0 {
			fmt.Fprintf(out, "warning: unknown placeholders left as-is: {%s}\n", strings.Join(unknown, "}, {"))
		}
	}

	unsubscribe := b.Subscribe(func(ev dispatch.Event) {
		printEvent(out, ev)
	})
	defer unsubscribe()

	if _, err := b.Start(ctx, req); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		if _, err := b.Cancel(); err != nil {
			var te *model.TransitionError
			if !errors.As(err, &te) {
				return err
			}
		}
	case <-done(b):
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := b.Wait(waitCtx); err != nil {
		return err
	}

	snap, err := b.Current()
	if err != nil {
		return err
	}
	printSummary(out, snap)
	return nil
}

func done(b *service.Broadcaster) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		_ = b.Wait(context.Background())
	}()
	return ch
}

func printEvent(w io.Writer, ev dispatch.Event) {
	switch ev.Type {
	case dispatch.EventItem:
		if ev.Item == nil {
			return
		}
		line := fmt.Sprintf("[%d/%d] %-6s %s (%s)", ev.Processed, ev.Total, ev.Item.Status, ev.Item.RecipientName, ev.Item.NormalizedPhone)
		if ev.Item.Error != "" {
			line += ": " + ev.Item.Error
		}
		fmt.Fprintln(w, line)
	default:
		fmt.Fprintf(w, "broadcast %s %s\n", ev.BroadcastID, ev.Type)
	}
}

func printSummary(w io.Writer, snap dispatch.Snapshot) {
	st := snap.Stats
	fmt.Fprintf(w, "%s: %d total, %d sent, %d failed, %d skipped, %d cancelled",
		snap.State, st.Total, st.Sent, st.Failed, st.Skipped, st.Cancelled)
	if snap.StartedAt != nil && snap.FinishedAt != nil {
		fmt.Fprintf(w, " in %s", snap.FinishedAt.Sub(*snap.StartedAt).Round(time.Second))
	}
	fmt.Fprintln(w)
}
