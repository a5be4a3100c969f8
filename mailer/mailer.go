// Package mailer delivers account mail over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

type Mailer interface {
	SendPasswordReset(ctx context.Context, to string, userName string, resetURL string) error
	SendPasswordChanged(ctx context.Context, to string, userName string) error
}

var ErrNotConfigured = errors.New("smtp not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
	logger *zap.Logger
}

func NewSMTPMailer(config Config, logger *zap.Logger) *SMTPMailer {
	if logger == nil {
		logger = zap.NewNop()
	}

	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &SMTPMailer{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
		logger: logger,
	}
}

func (m *SMTPMailer) IsConfigured() bool {
	return m.config.Host != "" && m.config.Port != "" && m.config.From != ""
}

type resetData struct {
	UserName string
	ResetURL string
}

type changedData struct {
	UserName string
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to string, userName string, resetURL string) error {
	body, err := render(passwordResetTemplate, resetData{UserName: userName, ResetURL: resetURL})
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	return m.sendHTML(ctx, to, "Password reset", body)
}

func (m *SMTPMailer) SendPasswordChanged(ctx context.Context, to string, userName string) error {
	body, err := render(passwordChangedTemplate, changedData{UserName: userName})
	if err != nil {
		return fmt.Errorf("render password changed template: %w", err)
	}
	return m.sendHTML(ctx, to, "Your password was changed", body)
}

func (m *SMTPMailer) sendHTML(ctx context.Context, to string, subject string, htmlBody string) error {
	if !m.IsConfigured() {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := m.config.From
	if m.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.config.FromName, m.config.From)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", strings.TrimSpace(htmlBody))

	if err := m.send(m.server, m.auth, m.config.From, []string{to}, msg.Bytes()); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	m.logger.Debug("mail sent", zap.String("subject", subject))
	return nil
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var passwordResetTemplate = template.Must(template.New("reset").Parse(`
<h2>Password reset</h2>
<p>Hi {{.UserName}},</p>
<p>We received a request to reset your password. The link below is valid for one hour:</p>
<p><a href="{{.ResetURL}}">{{.ResetURL}}</a></p>
<p>If you did not request this, ignore this email.</p>
`))

var passwordChangedTemplate = template.Must(template.New("changed").Parse(`
<h2>Password changed</h2>
<p>Hi {{.UserName}},</p>
<p>Your password was changed. If this was not you, contact your administrator.</p>
`))
