package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/LeventeLantos/whatsapp-broadcast/internal/audit"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/config"
	"github.com/LeventeLantos/whatsapp-broadcast/internal/model"
)

func TestLoggingMiddleware_PassesThroughAndCapturesStatus(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}

	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

const recipientsJSON = `[
  {"id": "s1", "name": "Asha", "phone": "9876543210", "shift": "morning", "dueAmount": 500},
  {"id": "s2", "name": "Bala", "phone": "12345", "shift": "evening"},
  {"id": "s3", "name": "Chitra", "phone": "+91 91234 56789", "shift": "full-time"}
]`

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "recipients.json")
	if err := os.WriteFile(path, []byte(recipientsJSON), 0o600); err != nil {
		t.Fatalf("write recipients: %v", err)
	}

	return &config.Config{
		Recipients: config.RecipientsConfig{File: path},
		Audit: config.AuditConfig{
			Store:      config.AuditStoreMemory,
			MaxEntries: 100,
			SQLitePath: filepath.Join(dir, "data", "broadcast.db"),
		},
		Broadcast: config.BroadcastConfig{CountryCode: "91"},
		Channel: config.ChannelConfig{
			Kind:              config.ChannelDeepLink,
			DryRunSuccessRate: 1,
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newApp() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.broadcaster.Shutdown(ctx)
		_ = a.Close()
	})
	return a
}

func runDryBroadcast(t *testing.T, a *app, audience string) string {
	t.Helper()

	cmd := newSendCmd(&cli{})
	if err := cmd.Flags().Parse([]string{"--template", "Hi {name}", "--audience", audience, "--interval", "0", "--dry-run"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	var f sendFlags
	f.template, _ = cmd.Flags().GetString("template")
	f.audience, _ = cmd.Flags().GetString("audience")
	f.interval, _ = cmd.Flags().GetFloat64("interval")
	f.dryRun, _ = cmd.Flags().GetBool("dry-run")

	req, err := f.request(cmd)
	if err != nil {
		t.Fatalf("request() error: %v", err)
	}

	var out bytes.Buffer
	if err := runSend(context.Background(), a.broadcaster, req, &out); err != nil {
		t.Fatalf("runSend() error: %v", err)
	}
	return out.String()
}

func TestSendFlags_OnlyOverrideWhatWasSet(t *testing.T) {
	cmd := newSendCmd(&cli{})
	if err := cmd.Flags().Parse([]string{"--template", "x"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	req, err := sendFlags{template: "x", audience: "all", jitter: true}.request(cmd)
	if err != nil {
		t.Fatalf("request() error: %v", err)
	}
	if req.IntervalSeconds != nil || req.Jitter != nil {
		t.Fatalf("expected config defaults, got interval=%v jitter=%v", req.IntervalSeconds, req.Jitter)
	}
	if !req.Personalize {
		t.Fatalf("expected personalization on by default")
	}
}

func TestSendFlags_TemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msg.txt")
	if err := os.WriteFile(path, []byte("Dear {name}"), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}

	cmd := newSendCmd(&cli{})
	req, err := sendFlags{templateFile: path, noPersonalize: true}.request(cmd)
	if err != nil {
		t.Fatalf("request() error: %v", err)
	}
	if req.Template != "Dear {name}" || req.Personalize {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestRunSend_DryRunWithMemoryAudit(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	out := runDryBroadcast(t, a, "all")
	if !strings.Contains(out, "completed: 3 total, 2 sent, 0 failed, 1 skipped, 0 cancelled") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
	if !strings.Contains(out, "[1/2] sent") || !strings.Contains(out, "[2/2] sent") {
		t.Fatalf("expected per-item progress lines:\n%s", out)
	}

	entries, err := a.audit.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries() error: %v", err)
	}
	if len(entries) != 2 || entries[1].Phone != "+919123456789" {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

func TestNewApp_SQLiteAuditSurvivesRestart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Store = config.AuditStoreSQLite

	first := newTestApp(t, cfg)
	runDryBroadcast(t, first, "morning")
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	second := newTestApp(t, cfg)
	entries, err := second.audit.Query(context.Background(), audit.Filter{Status: model.Sent})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(entries) != 1 || entries[0].RecipientID != "s1" {
		t.Fatalf("unexpected persisted entries: %+v", entries)
	}
}

func TestNewApp_RedisAudit(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Audit.Store = config.AuditStoreRedis
	cfg.Redis = config.RedisConfig{Enabled: true, Address: mr.Addr(), Key: "test:audit"}

	a := newTestApp(t, cfg)
	runDryBroadcast(t, a, "full-time")

	if n, err := mr.List("test:audit"); err != nil || len(n) != 1 {
		t.Fatalf("expected one redis entry, got %v (err=%v)", n, err)
	}
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Store = config.AuditStoreRedis
	cfg.Redis = config.RedisConfig{Enabled: true, Address: "127.0.0.1:1"}

	if _, err := newApp(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unreachable redis")
	}
}

func TestLiveChannel(t *testing.T) {
	cfg := testConfig(t)
	if got := liveChannel(cfg).Name(); got != "deeplink" {
		t.Fatalf("expected deeplink, got %q", got)
	}

	cfg.Channel.Kind = config.ChannelWebhook
	cfg.Channel.WebhookURL = "http://localhost:9/hook"
	if got := liveChannel(cfg).Name(); got != "webhook" {
		t.Fatalf("expected webhook, got %q", got)
	}
}
