package audit

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

var csvHeader = []string{"Timestamp", "Recipient Id", "Name", "Phone", "Status", "Error"}

// WriteCSV writes entries with every field quoted.
func WriteCSV(w io.Writer, entries []model.LogEntry) error {
	bw := bufio.NewWriter(w)
	if err := writeRow(bw, csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			neutralize(e.RecipientID),
			neutralize(e.RecipientName),
			e.Phone,
			string(e.Status),
			neutralize(e.Error),
		}
		if err := writeRow(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Export writes the entries matching f as CSV.
func (l *Log) Export(ctx context.Context, w io.Writer, f Filter) error {
	entries, err := l.Query(ctx, f)
	if err != nil {
		return err
	}
	return WriteCSV(w, entries)
}

// ExportFilename names a download after the export time.
func ExportFilename(t time.Time) string {
	return "broadcast-audit-" + t.Format("20060102-150405") + ".csv"
}

// neutralize stops spreadsheets from evaluating user-entered text as a formula.
func neutralize(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func writeRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}
