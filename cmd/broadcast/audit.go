package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/audit"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

func newAuditCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the delivery audit log",
	}
	cmd.AddCommand(newAuditExportCmd(c), newAuditClearCmd(c))
	return cmd
}

func newAuditExportCmd(c *cli) *cobra.Command {
	var (
		output    string
		status    string
		recipient string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write audit entries as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := audit.Filter{RecipientID: recipient}
			if status != "" {
				st, err := model.ParseItemStatus(status)
				if err != nil {
					return err
				}
				f.Status = st
			}

			a, err := newApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if output == "-" {
				return a.audit.Export(cmd.Context(), cmd.OutOrStdout(), f)
			}
			if output == "" {
				output = audit.ExportFilename(time.Now())
			}

			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := a.audit.Export(cmd.Context(), file, f); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", `output file ("-" for stdout, default broadcast-audit-<timestamp>.csv)`)
	cmd.Flags().StringVar(&status, "status", "", "only entries with this status (sent or failed)")
	cmd.Flags().StringVar(&recipient, "recipient", "", "only entries for this recipient id")
	return cmd
}

func newAuditClearCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every audit entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.audit.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "audit log cleared")
			return nil
		},
	}
}
