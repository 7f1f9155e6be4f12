package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"guardian/internal/config"
	"guardian/internal/types"
)

// Backend names accepted by NOTIFY_BACKEND.
const (
	BackendLog   = "log"
	BackendSQS   = "sqs"
	BackendKafka = "kafka"
)

// New builds the publisher selected by cfg.Backend. Remote backends are
// wrapped in a BreakerPublisher. The returned close func releases the
// backend's connections and is never nil.
func New(ctx context.Context, cfg config.NotifyConfig, awsCfg config.AWSConfig, logger *slog.Logger) (types.NotifyAdminPublisher, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", BackendLog:
		return NewLogPublisher(logger), noop, nil

	case BackendSQS:
		if cfg.QueueURL == "" {
			return nil, noop, fmt.Errorf("notify backend %q requires a queue url", cfg.Backend)
		}
		sdkCfg, err := config.LoadAWSConfig(ctx, awsCfg)
		if err != nil {
			return nil, noop, err
		}
		pub := NewSQSPublisher(sqs.NewFromConfig(sdkCfg), cfg.QueueURL, logger)
		return NewBreakerPublisher("notify-sqs", pub), noop, nil

	case BackendKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, noop, fmt.Errorf("notify backend %q requires at least one broker", cfg.Backend)
		}
		pub := NewKafkaPublisher(NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
		return NewBreakerPublisher("notify-kafka", pub), pub.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
}
