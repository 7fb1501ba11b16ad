package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/inbucket/html2text"
	"github.com/wneessen/go-mail"
)

var ErrNotConfigured = errors.New("email delivery is not configured")

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// TLS policy: mandatory, opportunistic or none
	TLS string `mapstructure:"tls"`
}

// Message represents an email message
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string // optional, will be auto-generated from HTML if empty
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	cfg    SMTPConfig
	client *mail.Client
	logger *slog.Logger
}

// NewSMTPMailer builds a mailer from cfg. An empty host means mail is not
// configured and ErrNotConfigured is returned.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, ErrNotConfigured
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(30 * time.Second),
	}
	switch cfg.TLS {
	case "mandatory":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return &SMTPMailer{
		cfg:    cfg,
		client: client,
		logger: slog.With("component", "email", "host", cfg.Host),
	}, nil
}

// Send sends an email message
func (s *SMTPMailer) Send(ctx context.Context, msg *Message) error {
	if err := fillText(msg); err != nil {
		return err
	}

	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Info("Email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

func fillText(msg *Message) error {
	if msg.Text != "" {
		return nil
	}
	text, err := htmlToText(msg.HTML)
	if err != nil {
		return fmt.Errorf("failed to convert HTML to text: %w", err)
	}
	msg.Text = text
	return nil
}

// htmlToText converts HTML to plain text
func htmlToText(htmlContent string) (string, error) {
	text, err := html2text.FromString(htmlContent, html2text.Options{
		PrettyTables: true,
		OmitLinks:    false,
	})
	if err != nil {
		slog.Error("failed to convert HTML to text", "error", err)
		return "", err
	}
	return text, nil
}
