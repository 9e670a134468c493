// Package awsx builds the aws.Config shared by the Textract, SNS and Secrets
// Manager clients.
package awsx

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/dharsanguruparan/TextDrop/internal/config"
)

// loadDefaultConfig is swapped in tests.
var loadDefaultConfig = config.LoadDefaultConfig

// Load resolves credentials the usual way (env, shared files, instance role).
// When an endpoint override is configured, every client talks to it with
// static test credentials, which is what LocalStack expects.
func Load(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSEndpoint != "" {
		opts = append(opts,
			config.WithBaseEndpoint(cfg.AWSEndpoint),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
		)
	}
	awsCfg, err := loadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}
