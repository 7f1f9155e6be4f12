package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWSConfig builds the AWS SDK configuration used for the SQS and
// CloudWatch clients. Credentials come from the default chain. A non-empty
// EndpointURL routes every client to that endpoint (LocalStack).
func LoadAWSConfig(ctx context.Context, c AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
	}
	if c.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(c.EndpointURL))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, &ConfigError{
			Type:    ErrAWS,
			Message: "failed to load AWS SDK config",
			Err:     err,
		}
	}
	return cfg, nil
}
