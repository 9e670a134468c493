// Package secrets reads JSON secrets from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// BitlyTokenField is the JSON field the shortener credential is stored under.
const BitlyTokenField = "BITLY_ACCESS_TOKEN"

var (
	ErrSecretEmpty  = errors.New("secret value is empty or not a string")
	ErrFieldMissing = errors.New("secret field missing")
)

type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Manager looks up one field of a JSON secret.
type Manager struct {
	api   secretsAPI
	field string
}

// NewManager builds a Manager that returns field from the secrets it reads.
func NewManager(cfg aws.Config, field string) *Manager {
	return &Manager{api: secretsmanager.NewFromConfig(cfg), field: field}
}

// Lookup returns the configured field of secretID.
func (m *Manager) Lookup(ctx context.Context, secretID string) (string, error) {
	out, err := m.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", secretID, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("%s: %w", secretID, ErrSecretEmpty)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return "", fmt.Errorf("decode secret %s: %w", secretID, err)
	}
	v, ok := fields[m.field].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s.%s: %w", secretID, m.field, ErrFieldMissing)
	}
	return v, nil
}
