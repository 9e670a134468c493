package publish

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	published  []*sns.PublishInput
	publishErr error
	pages      [][]types.Subscription
	listErr    error
	listCalls  int
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.published = append(f.published, in)
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func (f *fakeSNS) ListSubscriptionsByTopic(_ context.Context, in *sns.ListSubscriptionsByTopicInput, _ ...func(*sns.Options)) (*sns.ListSubscriptionsByTopicOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	i := f.listCalls
	f.listCalls++
	out := &sns.ListSubscriptionsByTopicOutput{Subscriptions: f.pages[i]}
	if i+1 < len(f.pages) {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func sub(proto, endpoint, arn string) types.Subscription {
	return types.Subscription{Protocol: aws.String(proto), Endpoint: aws.String(endpoint), SubscriptionArn: aws.String(arn)}
}

func TestPublishSetsSubjectAndAttributes(t *testing.T) {
	api := &fakeSNS{}
	topic := &Topic{api: api, arn: "arn:aws:sns:us-east-1:1:files"}

	id, err := topic.Publish(context.Background(), Message{
		Subject:    "File Upload Notification",
		Body:       "A new file has been uploaded: report.pdf",
		Attributes: map[string]string{EmailAttribute: "a@example.com", "empty": ""},
	})
	require.NoError(t, err)
	require.Len(t, api.published, 1)

	in := api.published[0]
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, "arn:aws:sns:us-east-1:1:files", aws.ToString(in.TopicArn))
	assert.Equal(t, "File Upload Notification", aws.ToString(in.Subject))
	assert.Equal(t, "A new file has been uploaded: report.pdf", aws.ToString(in.Message))
	require.Len(t, in.MessageAttributes, 1)
	assert.Equal(t, "a@example.com", aws.ToString(in.MessageAttributes[EmailAttribute].StringValue))
}

func TestPublishWithoutSubject(t *testing.T) {
	api := &fakeSNS{}
	_, err := (&Topic{api: api, arn: "arn"}).Publish(context.Background(), Message{Body: "hi"})
	require.NoError(t, err)
	assert.Nil(t, api.published[0].Subject)
	assert.Nil(t, api.published[0].MessageAttributes)
}

func TestPublishErrors(t *testing.T) {
	_, err := (&Topic{api: &fakeSNS{}}).Publish(context.Background(), Message{Body: "x"})
	assert.ErrorIs(t, err, ErrNoTopic)

	_, err = (&Topic{api: &fakeSNS{publishErr: errors.New("throttled")}, arn: "arn"}).Publish(context.Background(), Message{Body: "x"})
	assert.ErrorContains(t, err, "throttled")
}

func TestVerified(t *testing.T) {
	api := &fakeSNS{pages: [][]types.Subscription{
		{
			sub("sqs", "a@example.com", "arn:sub:1"),
			sub("email", "pending@example.com", pendingConfirmation),
		},
		{
			sub("email", "A@Example.com", "arn:sub:2"),
		},
	}}
	topic := &Topic{api: api, arn: "arn"}

	ok, err := topic.Verified(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, api.listCalls)

	api.listCalls = 0
	ok, err = topic.Verified(context.Background(), "pending@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	api.listCalls = 0
	ok, err = topic.Verified(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifiedListError(t *testing.T) {
	_, err := (&Topic{api: &fakeSNS{listErr: errors.New("denied")}, arn: "arn"}).Verified(context.Background(), "a@example.com")
	assert.ErrorContains(t, err, "denied")
}
