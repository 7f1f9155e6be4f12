package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/config"
)

func TestNew_Backends(t *testing.T) {
	ctx := context.Background()
	awsCfg := config.AWSConfig{Region: "us-east-1", EndpointURL: "http://localhost:4566"}

	pub, closeFn, err := New(ctx, config.NotifyConfig{Backend: BackendLog}, awsCfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, pub)
	assert.NoError(t, closeFn())

	pub, closeFn, err = New(ctx, config.NotifyConfig{
		Backend:  BackendSQS,
		QueueURL: "http://localhost:4566/000000000000/admin-alerts",
	}, awsCfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &BreakerPublisher{}, pub)
	assert.NoError(t, closeFn())

	pub, closeFn, err = New(ctx, config.NotifyConfig{
		Backend:      BackendKafka,
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "guardian.admin-alerts",
	}, awsCfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &BreakerPublisher{}, pub)
	assert.NoError(t, closeFn())
}

func TestNew_InvalidBackends(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.NotifyConfig
	}{
		{"sqs without queue", config.NotifyConfig{Backend: BackendSQS}},
		{"kafka without brokers", config.NotifyConfig{Backend: BackendKafka}},
		{"unknown", config.NotifyConfig{Backend: "pigeon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, closeFn, err := New(context.Background(), tt.cfg, config.AWSConfig{}, nil)
			assert.Error(t, err)
			assert.Nil(t, pub)
			assert.NotNil(t, closeFn)
		})
	}
}
