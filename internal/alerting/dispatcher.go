package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/metrics"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

// DefaultDispatchTimeout bounds a single channel send.
const DefaultDispatchTimeout = 15 * time.Second

// SendResult is the outcome of one channel send.
type SendResult struct {
	ChannelID string
	Err       error
}

// Dispatcher fans an alert out to every enabled channel. Channel failures
// are logged and never returned to the caller.
type Dispatcher struct {
	channels []notify.Channel
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over channels. A non-positive timeout
// uses DefaultDispatchTimeout.
func NewDispatcher(channels []notify.Channel, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &Dispatcher{channels: channels, timeout: timeout}
}

// Channels returns the configured channels, enabled or not.
func (d *Dispatcher) Channels() []notify.Channel {
	out := make([]notify.Channel, len(d.channels))
	copy(out, d.channels)
	return out
}

// Dispatch sends alert to all enabled channels concurrently and waits for
// every send to finish or time out.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *model.Alert) []SendResult {
	var (
		mu      sync.Mutex
		results []SendResult
		wg      sync.WaitGroup
	)

	for _, ch := range d.channels {
		if !ch.Enabled() {
			continue
		}
		wg.Add(1)
		go func(ch notify.Channel) {
			defer wg.Done()
			err := d.send(ctx, ch, alert)
			mu.Lock()
			results = append(results, SendResult{ChannelID: ch.ID(), Err: err})
			mu.Unlock()
		}(ch)
	}
	wg.Wait()
	return results
}

// DispatchAsync dispatches in the background so the caller is never held
// up by a slow channel. Wait blocks until these finish.
func (d *Dispatcher) DispatchAsync(alert *model.Alert) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Dispatch(context.Background(), alert)
	}()
}

// Wait blocks until in-flight async dispatches finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) send(ctx context.Context, ch notify.Channel, alert *model.Alert) (err error) {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panic: %v", r)
		}
		metrics.RecordSend(ch.ID(), string(ch.Type()), err)
		if err != nil {
			event := log.Warn()
			if ch.Type() == model.ChannelDatabase {
				event = log.Debug()
			}
			event.Err(err).
				Str("channel_id", ch.ID()).
				Str("channel_type", string(ch.Type())).
				Str("alert_id", alert.ID).
				Msg("notification failed")
		}
	}()

	// Each channel gets its own copy so a sender cannot mutate the alert
	// another sender is reading.
	return ch.Send(sendCtx, alert.Clone())
}
