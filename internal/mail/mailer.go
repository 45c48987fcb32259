package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"userhub/internal/config"
)

// PasswordResetMessage is everything needed to render a reset email.
type PasswordResetMessage struct {
	To        string
	FirstName string
	ResetURL  string
	ExpiresIn time.Duration
}

type Mailer interface {
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}

func NewMailer(cfg config.MailConfig, log zerolog.Logger) (Mailer, error) {
	switch cfg.Driver {
	case config.MailDriverSMTP:
		return NewSMTPMailer(cfg), nil
	case config.MailDriverLog:
		return NewLogMailer(log), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

const resetSubject = "Password Reset"

var resetTemplate = template.Must(template.New("reset").Funcs(template.FuncMap{
	"minutes": func(d time.Duration) int { return int(d.Minutes()) },
}).Parse(`<h1>Hello {{.FirstName}},</h1>
<p>We received a request to reset your password.</p>
<p>Click the link below to reset your password:</p>
<a href="{{.ResetURL}}" style="padding: 10px 15px; background-color: #4CAF50; color: white; text-decoration: none; border-radius: 5px;">Reset Password</a>
<p>This link will expire in {{minutes .ExpiresIn}} minutes.</p>
<p>If you didn't request this, please ignore this email.</p>
<p>Thanks,</p>
<p>The Team</p>
`))

func renderPasswordReset(msg PasswordResetMessage) (string, error) {
	var buf bytes.Buffer
	if err := resetTemplate.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("render reset email: %w", err)
	}
	return buf.String(), nil
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer delivers mail through an authenticated SMTP relay.
type SMTPMailer struct {
	from   string
	dialer dialer
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := renderPasswordReset(msg)
	if err != nil {
		return err
	}

	message := gomail.NewMessage()
	message.SetHeader("From", m.from)
	message.SetHeader("To", msg.To)
	message.SetHeader("Subject", resetSubject)
	message.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogMailer writes reset links to the log instead of sending them.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log.With().Str("component", "mailer").Logger()}
}

func (m *LogMailer) SendPasswordReset(_ context.Context, msg PasswordResetMessage) error {
	m.log.Info().
		Str("to", msg.To).
		Str("reset_url", msg.ResetURL).
		Dur("expires_in", msg.ExpiresIn).
		Msg("password reset email")
	return nil
}
