package broker

import (
	"testing"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

func TestNewProducerValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})

	if _, err := NewProducer(config.KafkaConfig{}, logg); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, nil); err == nil {
		t.Fatalf("expected error without logger")
	}
	p, err := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, logg)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	defer p.Close()
}

func TestNewConsumerValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test"})
	base := config.KafkaConfig{
		Brokers:       []string{"localhost:9092"},
		DomainTopic:   "domain-events",
		ConsumerGroup: "worker",
	}

	cases := []struct {
		name   string
		mutate func(config.KafkaConfig) config.KafkaConfig
	}{
		{"no brokers", func(c config.KafkaConfig) config.KafkaConfig { c.Brokers = nil; return c }},
		{"no topic", func(c config.KafkaConfig) config.KafkaConfig { c.DomainTopic = ""; return c }},
		{"no group", func(c config.KafkaConfig) config.KafkaConfig { c.ConsumerGroup = ""; return c }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewConsumer(tc.mutate(base), logg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	c, err := NewConsumer(base, logg)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	defer c.Close()
}

func TestHeaderConversionRoundTrip(t *testing.T) {
	in := map[string]string{
		"event_type":     "order.placed",
		"aggregate_type": "order",
	}
	out := fromKafkaHeaders(toKafkaHeaders(in))
	if len(out) != len(in) {
		t.Fatalf("expected %d headers, got %d", len(in), len(out))
	}
	for k, v := range in {
		if out[k] != v {
			t.Fatalf("header %s: expected %q, got %q", k, v, out[k])
		}
	}

	if toKafkaHeaders(nil) != nil {
		t.Fatalf("expected nil headers to stay nil")
	}
	if fromKafkaHeaders(nil) != nil {
		t.Fatalf("expected nil kafka headers to stay nil")
	}
}
