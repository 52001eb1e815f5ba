package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"github.com/example/roadside-assist/internal/ingest"
	"github.com/example/roadside-assist/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadside_consumer_messages_consumed_total",
		Help: "Provider location messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadside_consumer_messages_invalid_total",
		Help: "Provider location messages that failed to decode or validate",
	})
	dirUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadside_consumer_directory_updates_total",
		Help: "Successful directory position updates",
	})
	dirErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roadside_consumer_directory_errors_total",
		Help: "Directory updates that failed after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, dirUpdates, dirErrors)
}

const maxBackoff = 30 * time.Second

// PositionUpdater is the one directory call the consumer makes.
type PositionUpdater interface {
	UpdatePosition(ctx context.Context, rep models.LocationReport) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type consumer struct {
	dir      PositionUpdater
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// run reads until ctx is done, backing off on broker errors.
func (c *consumer) run(ctx context.Context, r messageReader) {
	backoff := time.Second
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("kafka read error", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		c.handle(ctx, m)
	}
}

// handle applies one message. Bad messages are counted and skipped.
func (c *consumer) handle(ctx context.Context, m kafka.Message) bool {
	msgsConsumed.Inc()
	rep, err := ingest.DecodeLocation(m.Value)
	if err != nil {
		msgsInvalid.Inc()
		c.logger.Warn("invalid location message", "offset", m.Offset, "error", err)
		return false
	}
	if rep.At.IsZero() {
		rep.At = m.Time
	}
	if err := updateWithRetry(ctx, c.dir, rep, c.attempts, c.delay); err != nil {
		dirErrors.Inc()
		c.logger.Error("directory update failed", "provider_id", rep.ProviderID, "error", err)
		return false
	}
	dirUpdates.Inc()
	return true
}

// updateWithRetry retries with doubling delay and gives up early when ctx ends.
func updateWithRetry(ctx context.Context, dir PositionUpdater, rep models.LocationReport, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = dir.UpdatePosition(ctx, rep); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
