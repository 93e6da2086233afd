// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package mail sends transactional email: the welcome message and password
// reset links.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	texttemplate "text/template"

	"github.com/samber/oops"
)

// Message is one outgoing email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Recipient is the addressee of a templated message.
type Recipient struct {
	Name  string
	Email string
}

// FirstName returns the first word of the recipient's name.
func (r Recipient) FirstName() string {
	for i, c := range r.Name {
		if c == ' ' {
			return r.Name[:i]
		}
	}
	return r.Name
}

var (
	textTemplates = texttemplate.Must(texttemplate.New("mail").Parse(`
{{define "welcome"}}Hi {{.Recipient.FirstName}},

Welcome to Natours, we're glad to have you.

Upload a profile photo and start exploring tours: {{.URL}}
{{end}}
{{define "reset"}}Hi {{.Recipient.FirstName}},

Forgot your password? Submit a PATCH request with your new password and
passwordConfirm to: {{.URL}}

The link is valid for {{.Validity}}. If you didn't forget your password,
please ignore this email.
{{end}}`))

	htmlTemplates = template.Must(template.New("mail").Parse(`
{{define "welcome"}}<p>Hi {{.Recipient.FirstName}},</p>
<p>Welcome to Natours, we're glad to have you.</p>
<p><a href="{{.URL}}">Upload a profile photo</a> and start exploring tours.</p>
{{end}}
{{define "reset"}}<p>Hi {{.Recipient.FirstName}},</p>
<p>Forgot your password? <a href="{{.URL}}">Reset it here</a>. The link is valid for {{.Validity}}.</p>
<p>If you didn't forget your password, please ignore this email.</p>
{{end}}`))
)

type templateData struct {
	Recipient Recipient
	URL       string
	Validity  string
}

func render(name, subject string, to Recipient, data templateData) (Message, error) {
	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, name, data); err != nil {
		return Message{}, oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, name, data); err != nil {
		return Message{}, oops.Code("MAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return Message{
		To:      to.Email,
		ToName:  to.Name,
		Subject: subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// Welcome renders the signup greeting.
func Welcome(to Recipient, url string) (Message, error) {
	return render("welcome", "Welcome to the Natours family!", to, templateData{Recipient: to, URL: url})
}

// PasswordReset renders the reset-link message; validity is shown to the
// reader, e.g. "10 minutes".
func PasswordReset(to Recipient, url, validity string) (Message, error) {
	return render("reset", fmt.Sprintf("Your password reset token (valid for %s)", validity), to,
		templateData{Recipient: to, URL: url, Validity: validity})
}

// LogMailer writes messages to a logger instead of delivering them.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a Mailer for development.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs msg.
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "email not delivered, logging instead",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text)
	return nil
}
