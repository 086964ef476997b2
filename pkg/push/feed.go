// Package push maintains the websocket connection to the backend's push
// feed and hands decoded envelopes to the consumer. The feed reconnects
// with exponential backoff; deduplication is the timeline's job, so a
// replayed frame after reconnect is harmless.
package push

import (
	"context"
	"sync"
	"time"

	"chatdesk/internal/constants"
	"chatdesk/internal/metrics"
	"chatdesk/internal/models"
	"chatdesk/internal/retry"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// Feed is a reconnecting websocket consumer of the backend push stream.
type Feed struct {
	url    string
	logger *logrus.Logger

	events chan models.PushEnvelope

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewFeed creates a push feed for the given websocket URL.
func NewFeed(url string, logger *logrus.Logger) *Feed {
	return &Feed{
		url:    url,
		logger: logger,
		events: make(chan models.PushEnvelope, constants.PushFeedBufferSize),
	}
}

// Events returns the channel on which decoded push envelopes arrive.
// The channel is closed after Stop once the read loop has exited.
func (f *Feed) Events() <-chan models.PushEnvelope {
	return f.events
}

// Start begins the connect/read/reconnect loop.
func (f *Feed) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return
	}
	f.started = true

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer close(f.events)
		f.run(runCtx)
	}()

	f.logger.WithField("url", f.url).Info("Push feed started")
}

// Stop terminates the feed and waits for the read loop to exit.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	cancel := f.cancel
	f.mu.Unlock()

	cancel()
	f.wg.Wait()
	f.logger.Info("Push feed stopped")
}

func (f *Feed) run(ctx context.Context) {
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultPushReconnectMaxSec) * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	})

	attempt := 1
	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := f.consumeConnection(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			// A healthy connection resets the backoff schedule
			attempt = 1
		}

		metrics.IncrementCounter("push_feed_reconnects_total", nil, "Push feed reconnect attempts")
		delay := backoff.NextDelay(attempt)
		f.logger.WithError(err).WithFields(logrus.Fields{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}).Warn("Push feed connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		// Cap the exponent so the delay stays near MaxDelay instead of overflowing
		if attempt < 16 {
			attempt++
		}
	}
}

// consumeConnection dials once and reads frames until the connection fails.
// The bool reports whether the dial itself succeeded.
func (f *Feed) consumeConnection(ctx context.Context) (bool, error) {
	conn, _, err := websocket.Dial(ctx, f.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	f.logger.WithField("url", f.url).Info("Push feed connected")
	metrics.IncrementCounter("push_feed_connects_total", nil, "Successful push feed connections")

	for {
		var envelope models.PushEnvelope
		if err := wsjson.Read(ctx, conn, &envelope); err != nil {
			return true, err
		}

		metrics.IncrementCounter("push_events_total", map[string]string{
			"event": envelope.Event,
		}, "Push events received by type")

		select {
		case f.events <- envelope:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}
