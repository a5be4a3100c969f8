package sqsmq

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/zlnvch/collabdocs/mq"
)

type SQSMessageQueue struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSMessageQueue resolves queueName among the account's queues and
// fails if it does not exist.
func NewSQSMessageQueue(ctx context.Context, devMode bool, sqsEndpoint string, queueName string) (*SQSMessageQueue, error) {
	client, err := newSQSClient(ctx, devMode, sqsEndpoint)
	if err != nil {
		return nil, err
	}

	queues, err := getQueues(ctx, client, queueName)
	if err != nil {
		return nil, err
	}

	for _, q := range queues {
		if strings.HasSuffix(q, "/"+queueName) {
			return &SQSMessageQueue{client: client, queueURL: q}, nil
		}
	}

	return nil, fmt.Errorf("given queue name '%s' not found in SQS", queueName)
}

func (sqsmq *SQSMessageQueue) Send(ctx context.Context, body string) error {
	return sendMessage(ctx, sqsmq, body)
}

func (sqsmq *SQSMessageQueue) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	return receiveMessage(ctx, sqsmq, visibilityTimeout)
}

func (sqsmq *SQSMessageQueue) Delete(ctx context.Context, msg *mq.Message) error {
	return deleteMessage(ctx, sqsmq, msg)
}
