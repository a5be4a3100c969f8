package mq

import "context"

// MessageQueue is a single work queue. Receive returns a nil message when
// a poll ends empty.
type MessageQueue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	// Id is the receipt handle used to delete the message.
	Id   string
	Body string
}
