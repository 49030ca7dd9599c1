package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

type fakeClient struct {
	published  map[string][]string
	list       []string
	trimStop   int64
	publishErr error
	closed     bool
}

func (f *fakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "ping")
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "publish", channel, message)
	if f.publishErr != nil {
		cmd.SetErr(f.publishErr)
		return cmd
	}
	if f.published == nil {
		f.published = map[string][]string{}
	}
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	cmd.SetVal(1)
	return cmd
}

func (f *fakeClient) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		f.list = append([]string{string(v.([]byte))}, f.list...)
	}
	cmd := redis.NewIntCmd(ctx, "lpush", key)
	cmd.SetVal(int64(len(f.list)))
	return cmd
}

func (f *fakeClient) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.trimStop = stop
	if int64(len(f.list)) > stop+1 {
		f.list = f.list[:stop+1]
	}
	cmd := redis.NewStatusCmd(ctx, "ltrim", key)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func newTestChannel(t *testing.T, fc *fakeClient, cfg map[string]interface{}) *RedisChannel {
	t.Helper()
	ch := NewRedisChannel()
	ch.client = fc
	require.NoError(t, ch.Init(model.AlertChannel{ID: "cache", Type: model.ChannelRedis, Enabled: true, Config: cfg}))
	return ch
}

func alert(id string) *model.Alert {
	return &model.Alert{ID: id, Type: model.SeverityInfo, Category: model.CategorySystem, Title: "t", Timestamp: time.Now()}
}

func TestRedisChannel_PublishAndCappedList(t *testing.T) {
	fc := &fakeClient{}
	ch := newTestChannel(t, fc, map[string]interface{}{
		"address": "localhost:6379", "list_key": "pizzeria:alerts:recent", "max_length": 2,
	})
	ctx := context.Background()
	require.NoError(t, ch.Start(ctx))

	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, ch.Send(ctx, alert(id)))
	}

	assert.Len(t, fc.published["pizzeria:alerts"], 3, "default pub/sub channel")
	assert.EqualValues(t, 1, fc.trimStop)
	require.Len(t, fc.list, 2)
	assert.Contains(t, fc.list[0], `"a3"`)

	require.NoError(t, ch.Stop())
	assert.True(t, fc.closed)
}

func TestRedisChannel_PublishFailure(t *testing.T) {
	fc := &fakeClient{publishErr: errors.New("READONLY")}
	ch := newTestChannel(t, fc, map[string]interface{}{"address": "localhost:6379"})

	assert.ErrorContains(t, ch.Send(context.Background(), alert("a1")), "READONLY")
	assert.EqualValues(t, 1, ch.Stats().FailTotal)
	assert.Empty(t, fc.list)
}

func TestRedisChannel_InitRequiresAddress(t *testing.T) {
	ch := NewRedisChannel()
	ch.client = &fakeClient{}
	assert.Error(t, ch.Init(model.AlertChannel{ID: "cache", Config: map[string]interface{}{}}))
}
