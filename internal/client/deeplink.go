package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const deepLinkScheme = "whatsapp://"

var ErrNotInstalled = errors.New("whatsapp desktop not found")

// Opener hands a URL to the operating system.
type Opener func(ctx context.Context, rawURL string) error

// DeepLink opens a pre-filled chat in the WhatsApp desktop client.
type DeepLink struct {
	open   Opener
	goos   string
	exists func(path string) bool
	getenv func(string) string
}

func NewDeepLink() *DeepLink {
	return &DeepLink{
		open:   SystemOpener,
		goos:   runtime.GOOS,
		exists: pathExists,
		getenv: os.Getenv,
	}
}

// WithOpener replaces the system opener.
func (d *DeepLink) WithOpener(open Opener) *DeepLink {
	d.open = open
	return d
}

func (d *DeepLink) Name() string { return "deeplink" }

// URL builds whatsapp://send?phone=<digits>&text=<percent-encoded message>.
func URL(phone, message string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	text := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	return deepLinkScheme + "send?phone=" + digits + "&text=" + text
}

// Send opens the chat; the desktop client gives no message reference back.
func (d *DeepLink) Send(ctx context.Context, phone, message string) (string, error) {
	if err := d.open(ctx, URL(phone, message)); err != nil {
		return "", fmt.Errorf("open deep link: %w", err)
	}
	return "", nil
}

// Check reports whether the desktop client appears to be installed.
func (d *DeepLink) Check(context.Context) error {
	if !d.Installed() {
		return ErrNotInstalled
	}
	return nil
}

// Ping opens the bare scheme to confirm a handler is registered.
func (d *DeepLink) Ping(ctx context.Context) error {
	if err := d.open(ctx, deepLinkScheme); err != nil {
		return fmt.Errorf("open %s: %w", deepLinkScheme, err)
	}
	return nil
}

func (d *DeepLink) Installed() bool {
	for _, p := range d.candidatePaths() {
		if d.exists(p) {
			return true
		}
	}
	if d.goos == "linux" {
		if _, err := exec.LookPath("whatsapp-desktop"); err == nil {
			return true
		}
	}
	return false
}

func (d *DeepLink) candidatePaths() []string {
	home := d.getenv("HOME")
	switch d.goos {
	case "windows":
		paths := []string{
			`C:\Program Files\WhatsApp\WhatsApp.exe`,
			`C:\Program Files (x86)\WhatsApp\WhatsApp.exe`,
		}
		if user := d.getenv("USERNAME"); user != "" {
			paths = append(paths,
				`C:\Users\`+user+`\AppData\Local\WhatsApp\WhatsApp.exe`,
				`C:\Users\`+user+`\AppData\Roaming\WhatsApp\WhatsApp.exe`,
			)
		}
		return paths
	case "darwin":
		paths := []string{"/Applications/WhatsApp.app", "/System/Applications/WhatsApp.app"}
		if home != "" {
			paths = append(paths, filepath.Join(home, "Applications", "WhatsApp.app"))
		}
		return paths
	case "linux":
		paths := []string{
			"/usr/bin/whatsapp-desktop",
			"/usr/local/bin/whatsapp-desktop",
			"/opt/WhatsApp/whatsapp-desktop",
			"/snap/bin/whatsapp-for-linux",
			"/usr/bin/whatsapp-for-linux",
		}
		if home != "" {
			paths = append(paths, filepath.Join(home, ".local", "bin", "whatsapp-desktop"))
		}
		return paths
	}
	return nil
}

// SystemOpener runs the platform URL handler.
func SystemOpener(ctx context.Context, rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", rawURL)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", rawURL)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", rawURL)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", cmd.Path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
