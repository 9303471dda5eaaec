package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "recipients.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return p
}

func TestJSONRecipientRepo_ListAll(t *testing.T) {
	t.Parallel()

	p := writeFile(t, `[
		{"id":"s1","name":"Asha","phone":"9876543210","shift":"morning","dueAmount":500},
		{"id":"s2","name":"Bala","phone":"12345","monthlyFee":1200}
	]`)

	got, err := NewJSONRecipientRepo(p).ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Asha" || got[1].ID != "s2" {
		t.Fatalf("unexpected recipients: %+v", got)
	}
	if got[0].DueAmount != model.NewAmount(500) {
		t.Fatalf("expected due amount 500, got %v", got[0].DueAmount)
	}
	if !got[1].MonthlyFee.Valid || got[1].DueAmount.Valid {
		t.Fatalf("unexpected amounts: %+v", got[1])
	}
}

func TestJSONRecipientRepo_AmountsAsStrings(t *testing.T) {
	t.Parallel()

	p := writeFile(t, `[
		{"id":"s1","name":"Asha","phone":"9876543210","dueAmount":"500","monthlyFee":" 1200.50 "},
		{"id":"s2","name":"Bala","phone":"9123456789","dueAmount":750},
		{"id":"s3","name":"Chitra","phone":"8123456789"},
		{"id":"s4","name":"Dev","phone":"8123456780","dueAmount":null,"monthlyFee":""}
	]`)

	got, err := NewJSONRecipientRepo(p).ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 recipients, got %d", len(got))
	}
	if got[0].DueAmount != model.NewAmount(500) || got[0].MonthlyFee != model.NewAmount(1200.5) {
		t.Fatalf("unexpected string amounts: %+v", got[0])
	}
	if got[1].DueAmount != model.NewAmount(750) {
		t.Fatalf("unexpected numeric amount: %+v", got[1].DueAmount)
	}
	for _, r := range got[2:] {
		if r.DueAmount.Valid || r.MonthlyFee.Valid || r.HasDue() {
			t.Fatalf("expected %s to have no amounts, got %+v", r.ID, r)
		}
	}

	_, err = NewJSONRecipientRepo(writeFile(t, `[{"id":"s1","dueAmount":"five hundred"}]`)).ListAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "invalid amount") {
		t.Fatalf("expected invalid amount error, got %v", err)
	}
}

func TestJSONRecipientRepo_Errors(t *testing.T) {
	t.Parallel()

	if _, err := NewJSONRecipientRepo(filepath.Join(t.TempDir(), "missing.json")).ListAll(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}

	if _, err := NewJSONRecipientRepo(writeFile(t, `{"id":"x"}`)).ListAll(context.Background()); err == nil {
		t.Fatalf("expected error for non-array payload")
	}

	_, err := NewJSONRecipientRepo(writeFile(t, `[{"name":"no id"}]`)).ListAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "has no id") {
		t.Fatalf("expected missing id error, got %v", err)
	}
}
