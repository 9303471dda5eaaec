// Package repo loads recipients and persists the audit log in SQL databases.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

// RecipientRepository is the read-only recipient source.
type RecipientRepository interface {
	ListAll(ctx context.Context) ([]model.Recipient, error)
}

// JSONRecipientRepo reads the dashboard's student export, a JSON array.
type JSONRecipientRepo struct {
	path string
}

func NewJSONRecipientRepo(path string) *JSONRecipientRepo {
	return &JSONRecipientRepo{path: path}
}

func (r *JSONRecipientRepo) ListAll(_ context.Context) ([]model.Recipient, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read recipients: %w", err)
	}

	var out []model.Recipient
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode recipients %s: %w", r.path, err)
	}
	for i, rec := range out {
		if rec.ID == "" {
			return nil, fmt.Errorf("decode recipients %s: entry %d has no id", r.path, i)
		}
	}
	return out, nil
}
