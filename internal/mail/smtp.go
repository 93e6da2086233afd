// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package mail

import (
	"context"
	netmail "net/mail"
	"time"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"
)

// TLS modes for an SMTP relay.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSImplicit      = "implicit"
	TLSNone          = "none"
)

// SMTPConfig addresses an SMTP relay.
type SMTPConfig struct {
	Host     string        `koanf:"host"`
	Port     int           `koanf:"port"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	From     string        `koanf:"from"`
	FromName string        `koanf:"from_name"`
	TLS      string        `koanf:"tls"`
	Timeout  time.Duration `koanf:"timeout"`
}

// SMTPMailer delivers through an SMTP relay. Unless TLS is "opportunistic"
// or "none", a relay that does not offer STARTTLS is refused before any
// credentials are sent.
type SMTPMailer struct {
	cfg  SMTPConfig
	opts []gomail.Option
}

// NewSMTPMailer validates cfg and returns a mailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host and port are required")
	}
	if _, err := netmail.ParseAddress(cfg.From); err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("from", cfg.From).Wrap(err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TLS == "" {
		cfg.TLS = TLSMandatory
	}

	opts := []gomail.Option{gomail.WithTimeout(cfg.Timeout)}
	switch cfg.TLS {
	case TLSMandatory:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	case TLSOpportunistic:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	case TLSImplicit:
		opts = append(opts, gomail.WithSSL())
	case TLSNone:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	default:
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("tls", cfg.TLS).
			Errorf("smtp tls must be one of mandatory, opportunistic, implicit or none")
	}
	opts = append(opts, gomail.WithPort(cfg.Port))
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password))
	}
	return &SMTPMailer{cfg: cfg, opts: opts}, nil
}

// Send delivers msg. The context bounds dialing and the whole exchange.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	out, err := m.compose(msg)
	if err != nil {
		return oops.Code("MAIL_COMPOSE_FAILED").With("to", msg.To).Wrap(err)
	}

	client, err := gomail.NewClient(m.cfg.Host, m.opts...)
	if err != nil {
		return oops.Code("MAIL_CONFIG_INVALID").With("host", m.cfg.Host).Wrap(err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, out); err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("host", m.cfg.Host).
			With("port", m.cfg.Port).
			With("to", msg.To).
			Wrap(err)
	}
	return nil
}

// compose builds a multipart/alternative message; go-mail picks the
// transfer encoding for each part.
func (m *SMTPMailer) compose(msg Message) (*gomail.Msg, error) {
	out := gomail.NewMsg()
	if err := out.FromFormat(m.cfg.FromName, m.cfg.From); err != nil {
		return nil, err
	}
	if err := out.AddToFormat(msg.ToName, msg.To); err != nil {
		return nil, err
	}
	out.Subject(msg.Subject)
	out.SetDate()
	out.SetMessageID()

	switch {
	case msg.Text != "" && msg.HTML != "":
		out.SetBodyString(gomail.TypeTextPlain, msg.Text)
		out.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		out.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		out.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}
	return out, nil
}
