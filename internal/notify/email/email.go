package email

import (
	"context"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
	"github.com/y001j/pizzeria-alerts/internal/notify/webhook"
)

func init() {
	notify.Register(model.ChannelEmail, func() notify.Channel {
		return NewEmailChannel(nil)
	})
}

// Params 定义了邮件渠道的配置参数
type Params struct {
	To       []string `json:"to"`
	From     string   `json:"from" validate:"required"`
	SMTPHost string   `json:"smtp_host" validate:"required"`
	SMTPPort int      `json:"smtp_port" validate:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
}

// MailSender hands a rendered message to a mail transport.
type MailSender interface {
	Send(ctx context.Context, to []string, from, subject, body string) error
}

// SMTPSender delivers through net/smtp with optional PLAIN auth.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Send builds an HTML message and submits it.
func (s *SMTPSender) Send(ctx context.Context, to []string, from, subject, body string) error {
	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s\r\n",
		from,
		strings.Join(to, ","),
		subject,
		body,
	))

	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))

	done := make(chan error, 1)
	go func() { done <- smtp.SendMail(addr, auth, from, to, msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EmailChannel mails alerts to a fixed recipient list.
type EmailChannel struct {
	*notify.BaseChannel
	params *Params
	sender MailSender
}

// NewEmailChannel 创建邮件渠道; sender 为 nil 时使用SMTP
func NewEmailChannel(sender MailSender) *EmailChannel {
	return &EmailChannel{
		BaseChannel: notify.NewBaseChannel(model.ChannelEmail),
		sender:      sender,
	}
}

// Init requires at least one recipient.
func (c *EmailChannel) Init(cfg model.AlertChannel) error {
	if err := c.Setup(cfg); err != nil {
		return err
	}
	params, err := notify.DecodeParams(cfg, Params{SMTPPort: 587})
	if err != nil {
		return err
	}
	if len(params.To) == 0 {
		return fmt.Errorf("channel %s: at least one recipient is required", cfg.ID)
	}
	c.params = params
	if c.sender == nil {
		c.sender = &SMTPSender{
			Host:     params.SMTPHost,
			Port:     params.SMTPPort,
			Username: params.Username,
			Password: params.Password,
		}
	}
	c.LogInit()
	return nil
}

// Start is a no-op.
func (c *EmailChannel) Start(ctx context.Context) error { return nil }

// Send renders and mails the alert.
func (c *EmailChannel) Send(ctx context.Context, alert *model.Alert) error {
	err := c.sender.Send(ctx, c.params.To, c.params.From, Subject(alert), Body(alert))
	c.RecordResult(err)
	if err != nil {
		return err
	}
	log.Debug().
		Str("channel_id", c.ID()).
		Str("alert_id", alert.ID).
		Strs("recipients", c.params.To).
		Msg("alert email sent")
	return nil
}

// Stop is a no-op.
func (c *EmailChannel) Stop() error { return nil }

// Subject returns "[SEVERITY] title".
func Subject(alert *model.Alert) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Type)), alert.Title)
}

// Body renders the HTML body.
func Body(alert *model.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="font-family: Arial, sans-serif; margin: 20px;">
  <div style="background-color: %s; color: #222; padding: 15px; border-radius: 5px;">
    <h2>%s</h2>
    <p><strong>Severidade:</strong> %s &middot; <strong>Categoria:</strong> %s</p>
  </div>
  <div style="border: 1px solid #ddd; padding: 15px; margin-top: 10px; border-radius: 5px;">
    <p>%s</p>
    <p><strong>Horário:</strong> %s</p>
    <p><strong>ID do alerta:</strong> %s</p>
`,
		html.EscapeString(alert.Title),
		webhook.Color(alert.Type),
		html.EscapeString(alert.Title),
		strings.ToUpper(string(alert.Type)),
		html.EscapeString(string(alert.Category)),
		html.EscapeString(alert.Message),
		alert.Timestamp.Format("2006-01-02 15:04:05"),
		html.EscapeString(alert.ID),
	)

	if len(alert.Actions) > 0 {
		b.WriteString("    <h3>Ações recomendadas</h3>\n    <ul>\n")
		for _, action := range alert.Actions {
			fmt.Fprintf(&b, "      <li>%s</li>\n", html.EscapeString(action))
		}
		b.WriteString("    </ul>\n")
	}

	if len(alert.Data) > 0 {
		keys := make([]string, 0, len(alert.Data))
		for k := range alert.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("    <h3>Dados</h3>\n    <table>\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "      <tr><td>%s</td><td>%v</td></tr>\n",
				html.EscapeString(k), html.EscapeString(fmt.Sprint(alert.Data[k])))
		}
		b.WriteString("    </table>\n")
	}

	b.WriteString(`  </div>
  <p style="margin-top: 20px; font-size: 12px; color: #666;">Mensagem automática do sistema de alertas da pizzaria.</p>
</body>
</html>`)
	return b.String()
}
