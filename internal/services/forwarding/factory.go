package forwarding

import (
	"fmt"

	"github.com/promoledger/backend/internal/config"
)

// NewSink selects the sink named by FORWARD_SINK. q is only used by the
// queue sink and may be nil otherwise.
func NewSink(cfg config.ForwardingConfig, q Enqueuer) (Sink, error) {
	switch cfg.Sink {
	case "", "queue":
		if q == nil {
			return nil, fmt.Errorf("queue sink selected without a queue")
		}
		return NewQueueSink(q), nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka sink selected without brokers")
		}
		return NewKafkaSink(NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)), nil
	case "noop", "none":
		return NoopSink{}, nil
	default:
		return nil, fmt.Errorf("unknown forwarding sink %q", cfg.Sink)
	}
}
