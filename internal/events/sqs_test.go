package events

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSPublisherHandle(t *testing.T) {
	client := &fakeSQS{}
	pub := NewSQSPublisher(client, "https://sqs.test/queue")

	entry := OutboxEntry{ID: uuid.New(), Type: TypeBookingCreated, Payload: []byte(`{"x":1}`)}
	require.NoError(t, pub.Handle(context.Background(), entry))

	require.Len(t, client.inputs, 1)
	input := client.inputs[0]
	assert.Equal(t, "https://sqs.test/queue", *input.QueueUrl)
	assert.Equal(t, `{"x":1}`, *input.MessageBody)
	assert.Equal(t, TypeBookingCreated, *input.MessageAttributes["event_type"].StringValue)
	assert.Equal(t, entry.ID.String(), *input.MessageAttributes["event_id"].StringValue)
}

func TestSQSPublisherHandleError(t *testing.T) {
	pub := NewSQSPublisher(&fakeSQS{err: errors.New("throttled")}, "https://sqs.test/queue")
	err := pub.Handle(context.Background(), OutboxEntry{ID: uuid.New(), Type: TypeBookingCreated})
	assert.ErrorContains(t, err, "sqs send")
}
