package jetstream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

func runJetStream(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(10*time.Second), "nats server not ready")
	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestJetStreamChannel_PublishesToStream(t *testing.T) {
	conn := runJetStream(t)
	ch := NewJetStreamChannel()
	ch.SetNATSConnection(conn)
	require.NoError(t, ch.Init(model.AlertChannel{ID: "bus", Type: model.ChannelJetStream, Enabled: true}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Start(ctx))

	alert := &model.Alert{
		ID: "a-1", Type: model.SeverityCritical, Category: model.CategoryDatabase,
		Title: "Falha de Conexão com Database", Timestamp: time.Now(),
	}
	require.NoError(t, ch.Send(ctx, alert))
	require.NoError(t, ch.Send(ctx, alert), "duplicate id is deduplicated, not rejected")

	js, err := conn.JetStream()
	require.NoError(t, err)
	info, err := js.StreamInfo("PIZZERIA_ALERTS")
	require.NoError(t, err)
	assert.EqualValues(t, 1, info.State.Msgs)

	msg, err := js.GetLastMsg("PIZZERIA_ALERTS", "pizzeria.alerts.database.critical")
	require.NoError(t, err)
	var got model.Alert
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "a-1", got.ID)

	require.NoError(t, ch.Stop())
	assert.False(t, conn.IsClosed(), "shared connection stays open")
}

func TestJetStreamChannel_InitNeedsURLOrSharedConn(t *testing.T) {
	err := NewJetStreamChannel().Init(model.AlertChannel{ID: "bus"})
	assert.ErrorContains(t, err, "url is required")
}

func TestJetStreamChannel_SendBeforeStart(t *testing.T) {
	ch := NewJetStreamChannel()
	require.NoError(t, ch.Init(model.AlertChannel{ID: "bus", Config: map[string]interface{}{"url": "nats://127.0.0.1:4222"}}))
	assert.Error(t, ch.Send(context.Background(), &model.Alert{ID: "a"}))
	assert.EqualValues(t, 1, ch.Stats().FailTotal)
}

func TestSubject(t *testing.T) {
	a := &model.Alert{Category: model.CategorySecurity, Type: model.SeverityWarning}
	assert.Equal(t, "pizzeria.alerts.security.warning", Subject("pizzeria.alerts.", a))
}
