package awsx

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/dharsanguruparan/TextDrop/internal/config"
)

func stubLoader(t *testing.T, fn func(lo config.LoadOptions) (aws.Config, error)) {
	t.Helper()
	orig := loadDefaultConfig
	t.Cleanup(func() { loadDefaultConfig = orig })
	loadDefaultConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		var lo config.LoadOptions
		for _, opt := range optFns {
			require.NoError(t, opt(&lo))
		}
		return fn(lo)
	}
}

func TestLoadAppliesRegion(t *testing.T) {
	stubLoader(t, func(lo config.LoadOptions) (aws.Config, error) {
		assert.Equal(t, "eu-west-1", lo.Region)
		assert.Empty(t, lo.BaseEndpoint)
		assert.Nil(t, lo.Credentials)
		return aws.Config{Region: lo.Region}, nil
	})

	cfg, err := Load(context.Background(), &appconfig.Config{AWSRegion: "eu-west-1"})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
}

func TestLoadWithEndpointOverride(t *testing.T) {
	stubLoader(t, func(lo config.LoadOptions) (aws.Config, error) {
		assert.Equal(t, "http://localhost:4566", lo.BaseEndpoint)
		assert.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	})

	_, err := Load(context.Background(), &appconfig.Config{AWSRegion: "us-east-1", AWSEndpoint: "http://localhost:4566"})
	require.NoError(t, err)
}

func TestLoadWrapsErrors(t *testing.T) {
	stubLoader(t, func(config.LoadOptions) (aws.Config, error) {
		return aws.Config{}, errors.New("no creds")
	})

	_, err := Load(context.Background(), &appconfig.Config{})
	assert.ErrorContains(t, err, "load aws config: no creds")
}
