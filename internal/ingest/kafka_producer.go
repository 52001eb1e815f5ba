package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/observability"
)

const (
	DefaultEventsTopic    = "service-request-events"
	DefaultLocationsTopic = "provider-locations"
)

// KafkaProducer publishes lifecycle events and provider location reports.
// Messages are keyed so one request, or one provider, always lands on the
// same partition in order.
type KafkaProducer struct {
	events    *kafka.Writer
	locations *kafka.Writer
	timeout   time.Duration
}

func NewKafkaProducer(brokers []string, eventsTopic, locationsTopic string) *KafkaProducer {
	if eventsTopic == "" {
		eventsTopic = DefaultEventsTopic
	}
	if locationsTopic == "" {
		locationsTopic = DefaultLocationsTopic
	}
	return &KafkaProducer{
		events:    &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: eventsTopic, Balancer: &kafka.Hash{}},
		locations: &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: locationsTopic, Balancer: &kafka.Hash{}},
		timeout:   2 * time.Second,
	}
}

func (k *KafkaProducer) PublishEvent(ctx context.Context, ev models.LifecycleEvent) error {
	msg, err := EventMessage(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	err = k.events.WriteMessages(ctx, msg)
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	observability.EventsPublished.WithLabelValues(ev.Type, outcome).Inc()
	return err
}

func (k *KafkaProducer) PublishLocation(ctx context.Context, rep models.LocationReport) error {
	msg, err := LocationMessage(rep)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	return k.locations.WriteMessages(ctx, msg)
}

func (k *KafkaProducer) Close() error {
	if k == nil {
		return nil
	}
	return errors.Join(k.events.Close(), k.locations.Close())
}

// EventMessage encodes a lifecycle event keyed by request id.
func EventMessage(ev models.LifecycleEvent) (kafka.Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(ev.RequestID),
		Value:   b,
		Time:    ev.At,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(ev.Type)}},
	}, nil
}

// LocationMessage encodes a location report keyed by provider id.
func LocationMessage(rep models.LocationReport) (kafka.Message, error) {
	if err := ValidateReport(rep); err != nil {
		return kafka.Message{}, err
	}
	b, err := json.Marshal(rep)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(rep.ProviderID), Value: b, Time: rep.At}, nil
}

// DecodeLocation parses and validates a location message value.
func DecodeLocation(b []byte) (models.LocationReport, error) {
	var rep models.LocationReport
	if err := json.Unmarshal(b, &rep); err != nil {
		return rep, err
	}
	return rep, ValidateReport(rep)
}

func ValidateReport(rep models.LocationReport) error {
	if rep.ProviderID == "" {
		return errors.New("location report without provider id")
	}
	if rep.Lat < -90 || rep.Lat > 90 || rep.Lng < -180 || rep.Lng > 180 {
		return fmt.Errorf("location report for %s out of range: %f,%f", rep.ProviderID, rep.Lat, rep.Lng)
	}
	return nil
}
