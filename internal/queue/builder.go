// Package queue turns a broadcast config and recipient list into send items.
package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/audience"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/personalize"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/phone"
)

var (
	ErrEmptyMessage = errors.New("message template is empty")
	ErrNoRecipients = errors.New("no recipients matched the audience")
)

type Builder struct {
	normalizer   *phone.Normalizer
	personalizer *personalize.Personalizer
	now          func() time.Time
}

func NewBuilder(n *phone.Normalizer, p *personalize.Personalizer) *Builder {
	return &Builder{normalizer: n, personalizer: p, now: time.Now}
}

// WithClock overrides the build timestamp source.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build returns one item per selected recipient, in audience order.
// Invalid phones are SKIPPED with the normalizer's error and no message.
func (b *Builder) Build(cfg model.BroadcastConfig, recipients []model.Recipient) ([]model.QueueItem, error) {
	if strings.TrimSpace(cfg.Template) == "" {
		return nil, ErrEmptyMessage
	}

	selected := audience.Filter(recipients, audience.Audience(cfg.Audience))
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w (audience=%s)", ErrNoRecipients, cfg.Audience)
	}

	builtAt := b.now().UTC()
	stamp := builtAt.UnixMilli()

	items := make([]model.QueueItem, 0, len(selected))
	for _, r := range selected {
		it := model.QueueItem{
			ID:            fmt.Sprintf("%s-%d", r.ID, stamp),
			RecipientID:   r.ID,
			RecipientName: r.Name,
			Phone:         r.Phone,
			UpdatedAt:     builtAt,
		}

		res := b.normalizer.Normalize(r.Phone)
		if !res.Valid {
			it.Status = model.Skipped
			it.Error = res.Error
			items = append(items, it)
			continue
		}

		it.NormalizedPhone = res.Normalized
		it.Status = model.Queued
		if cfg.Personalize {
			it.Message = b.personalizer.Render(cfg.Template, r)
		} else {
			it.Message = cfg.Template
		}
		items = append(items, it)
	}

	return items, nil
}

// CountQueued returns how many items will actually be dispatched.
func CountQueued(items []model.QueueItem) int {
	n := 0
	for _, it := range items {
		if it.Status == model.Queued {
			n++
		}
	}
	return n
}
