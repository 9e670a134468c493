// Package publish sends plain-text notifications to a topic and answers
// whether an email address can receive them.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// EmailAttribute is the message attribute carrying the uploader's address.
const EmailAttribute = "email"

const pendingConfirmation = "PendingConfirmation"

// ErrNoTopic is returned when a publisher has no topic configured.
var ErrNoTopic = errors.New("no topic configured")

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	ListSubscriptionsByTopic(ctx context.Context, in *sns.ListSubscriptionsByTopicInput, optFns ...func(*sns.Options)) (*sns.ListSubscriptionsByTopicOutput, error)
}

// Message is one notification.
type Message struct {
	Subject string
	Body    string
	// Attributes are sent as String message attributes; empty values are
	// dropped.
	Attributes map[string]string
}

// Topic publishes to a single SNS topic.
type Topic struct {
	api snsAPI
	arn string
}

// NewTopic returns a Topic for arn.
func NewTopic(cfg aws.Config, arn string) *Topic {
	return &Topic{api: sns.NewFromConfig(cfg), arn: arn}
}

// ARN returns the topic the publisher writes to.
func (t *Topic) ARN() string { return t.arn }

// Publish sends msg and returns the service message id.
func (t *Topic) Publish(ctx context.Context, msg Message) (string, error) {
	if t.arn == "" {
		return "", ErrNoTopic
	}
	in := &sns.PublishInput{
		TopicArn: aws.String(t.arn),
		Message:  aws.String(msg.Body),
	}
	if msg.Subject != "" {
		in.Subject = aws.String(msg.Subject)
	}
	for name, value := range msg.Attributes {
		if value == "" {
			continue
		}
		if in.MessageAttributes == nil {
			in.MessageAttributes = make(map[string]types.MessageAttributeValue)
		}
		in.MessageAttributes[name] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(value),
		}
	}
	out, err := t.api.Publish(ctx, in)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", t.arn, err)
	}
	return aws.ToString(out.MessageId), nil
}

// Verified reports whether email has a confirmed email subscription on the
// topic. Subscriptions still awaiting confirmation do not count.
func (t *Topic) Verified(ctx context.Context, email string) (bool, error) {
	if t.arn == "" {
		return false, ErrNoTopic
	}
	p := sns.NewListSubscriptionsByTopicPaginator(t.api, &sns.ListSubscriptionsByTopicInput{
		TopicArn: aws.String(t.arn),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("list subscriptions of %s: %w", t.arn, err)
		}
		for _, sub := range page.Subscriptions {
			proto := aws.ToString(sub.Protocol)
			if proto != "email" && proto != "email-json" {
				continue
			}
			if !strings.EqualFold(aws.ToString(sub.Endpoint), email) {
				continue
			}
			if aws.ToString(sub.SubscriptionArn) != pendingConfirmation {
				return true, nil
			}
		}
	}
	return false, nil
}
