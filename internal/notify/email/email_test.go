package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

type sentMail struct {
	to            []string
	from, subject string
	body          string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(ctx context.Context, to []string, from, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, from: from, subject: subject, body: body})
	return nil
}

var emailCfg = model.AlertChannel{
	ID: "gerencia", Type: model.ChannelEmail, Enabled: true,
	Config: map[string]interface{}{
		"to":        []interface{}{"gerente@pizzaria.local"},
		"from":      "alertas@pizzaria.local",
		"smtp_host": "smtp.pizzaria.local",
	},
}

func testAlert() *model.Alert {
	return &model.Alert{
		ID:        "a-1",
		Type:      model.SeverityWarning,
		Category:  model.CategoryBusiness,
		Title:     "Atrasos nas Entregas",
		Message:   "tempo médio <75 min>",
		Timestamp: time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC),
		Actions:   []string{"Acionar entregadores extras"},
		Data:      map[string]interface{}{model.MetricAvgDeliveryMinutes: 75},
	}
}

func TestEmailChannel_Send(t *testing.T) {
	sender := &fakeSender{}
	ch := NewEmailChannel(sender)
	require.NoError(t, ch.Init(emailCfg))

	require.NoError(t, ch.Send(context.Background(), testAlert()))
	require.Len(t, sender.sent, 1)
	mail := sender.sent[0]
	assert.Equal(t, []string{"gerente@pizzaria.local"}, mail.to)
	assert.Equal(t, "alertas@pizzaria.local", mail.from)
	assert.Equal(t, "[WARNING] Atrasos nas Entregas", mail.subject)
	assert.Contains(t, mail.body, "tempo médio &lt;75 min&gt;")
	assert.Contains(t, mail.body, "<li>Acionar entregadores extras</li>")
	assert.Contains(t, mail.body, "avgDeliveryMinutes")
	assert.EqualValues(t, 1, ch.Stats().SentTotal)
}

func TestEmailChannel_SendFailureIsRecorded(t *testing.T) {
	ch := NewEmailChannel(&fakeSender{err: errors.New("connection refused")})
	require.NoError(t, ch.Init(emailCfg))

	assert.Error(t, ch.Send(context.Background(), testAlert()))
	assert.EqualValues(t, 1, ch.Stats().FailTotal)
}

func TestEmailChannel_InitRequiresRecipients(t *testing.T) {
	cfg := emailCfg
	cfg.Config = map[string]interface{}{"from": "a@b.c", "smtp_host": "smtp"}
	assert.ErrorContains(t, NewEmailChannel(&fakeSender{}).Init(cfg), "recipient")

	cfg.Config = map[string]interface{}{"to": []interface{}{"x@y.z"}, "smtp_host": "smtp"}
	assert.Error(t, NewEmailChannel(&fakeSender{}).Init(cfg))
}
