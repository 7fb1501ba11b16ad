package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"time"
)

const AppName = "Logi Track"

//go:embed templates/*.html.tmpl
var templatesFS embed.FS

// Each message template is parsed together with the shared layout.
var templates = map[string]*template.Template{
	"access_granted": mustParse("access_granted.html.tmpl"),
	"password_reset": mustParse("password_reset.html.tmpl"),
}

func mustParse(name string) *template.Template {
	return template.Must(template.ParseFS(templatesFS, "templates/layout.html.tmpl", "templates/"+name))
}

type templateData struct {
	AppName      string
	Subject      string
	Link         string
	TempPassword string
	TTL          string
}

// Dispatcher renders and sends the portal's notification emails.
type Dispatcher struct {
	mailer Mailer
	logger *slog.Logger
}

// NewDispatcher returns a dispatcher sending through mailer. A nil mailer
// makes every send fail with ErrNotConfigured.
func NewDispatcher(mailer Mailer) *Dispatcher {
	return &Dispatcher{
		mailer: mailer,
		logger: slog.With("component", "dispatcher"),
	}
}

func (d *Dispatcher) Configured() bool {
	return d != nil && d.mailer != nil
}

// SendAccessGranted tells an approved requester how to sign in.
func (d *Dispatcher) SendAccessGranted(ctx context.Context, to, magicLink, tempPassword string, ttl time.Duration) error {
	subject := AppName + " - Access granted"
	return d.send(ctx, "access_granted", to, templateData{
		Subject:      subject,
		Link:         magicLink,
		TempPassword: tempPassword,
		TTL:          humanDuration(ttl),
	})
}

// SendPasswordReset mails a single use sign-in link.
func (d *Dispatcher) SendPasswordReset(ctx context.Context, to, magicLink string, ttl time.Duration) error {
	subject := AppName + " - Sign-in link"
	return d.send(ctx, "password_reset", to, templateData{
		Subject: subject,
		Link:    magicLink,
		TTL:     humanDuration(ttl),
	})
}

func (d *Dispatcher) send(ctx context.Context, name, to string, data templateData) error {
	if !d.Configured() {
		return ErrNotConfigured
	}

	data.AppName = AppName
	html, err := Render(name, data)
	if err != nil {
		return err
	}

	msg := &Message{
		To:      []string{to},
		Subject: data.Subject,
		HTML:    html,
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.logger.Error("Failed to send email", "template", name, "to", to, "error", err)
		return err
	}
	return nil
}

// Render executes a message template inside the shared layout.
func Render(name string, data any) (string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	case d >= time.Minute:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
