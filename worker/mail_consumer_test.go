package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	mailermocks "github.com/zlnvch/collabdocs/mailer/mocks"
	"github.com/zlnvch/collabdocs/mq"
	mqmocks "github.com/zlnvch/collabdocs/mq/mocks"
	"github.com/zlnvch/collabdocs/worker"
)

// runUntilDrained runs the consumer over the given messages and stops it once
// they are consumed.
func runUntilDrained(t *testing.T, mockMQ *mqmocks.MockMQ, mockMailer *mailermocks.MockMailer, msgs ...*mq.Message) {
	t.Helper()

	for _, msg := range msgs {
		mockMQ.On("Receive", mock.Anything, int32(60)).Return(msg, nil).Once()
	}
	mockMQ.On("Receive", mock.Anything, int32(60)).Return(nil, context.Canceled)

	done := make(chan struct{})
	go func() {
		worker.NewMailConsumer(mockMQ, mockMailer, nil).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestMailConsumer_SendsAndDeletes(t *testing.T) {
	mockMQ := new(mqmocks.MockMQ)
	mockMailer := new(mailermocks.MockMailer)

	msg := &mq.Message{Id: "r1", Body: `{"kind":"password_changed","to":"ana@example.com","userName":"Ana"}`}
	mockMailer.On("SendPasswordChanged", mock.Anything, "ana@example.com", "Ana").Return(nil).Once()
	mockMQ.On("Delete", mock.Anything, msg).Return(nil).Once()

	runUntilDrained(t, mockMQ, mockMailer, msg)

	mockMailer.AssertExpectations(t)
	mockMQ.AssertExpectations(t)
}

func TestMailConsumer_FailedDeliveryStaysQueued(t *testing.T) {
	mockMQ := new(mqmocks.MockMQ)
	mockMailer := new(mailermocks.MockMailer)

	msg := &mq.Message{Id: "r1", Body: `{"kind":"password_changed","to":"ana@example.com","userName":"Ana"}`}
	mockMailer.On("SendPasswordChanged", mock.Anything, "ana@example.com", "Ana").Return(errors.New("smtp down")).Once()

	runUntilDrained(t, mockMQ, mockMailer, msg)

	mockMQ.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestMailConsumer_DropsBadMessages(t *testing.T) {
	mockMQ := new(mqmocks.MockMQ)
	mockMailer := new(mailermocks.MockMailer)

	malformed := &mq.Message{Id: "r1", Body: `not json`}
	unknown := &mq.Message{Id: "r2", Body: `{"kind":"newsletter","to":"ana@example.com"}`}
	mockMQ.On("Delete", mock.Anything, malformed).Return(nil).Once()
	mockMQ.On("Delete", mock.Anything, unknown).Return(nil).Once()

	runUntilDrained(t, mockMQ, mockMailer, malformed, unknown)

	mockMQ.AssertExpectations(t)
	mockMailer.AssertNotCalled(t, "SendPasswordChanged", mock.Anything, mock.Anything, mock.Anything)
}

func TestMailConsumer_EmptyPollContinues(t *testing.T) {
	mockMQ := new(mqmocks.MockMQ)
	mockMailer := new(mailermocks.MockMailer)

	mockMQ.On("Receive", mock.Anything, int32(60)).Return(nil, nil).Twice()

	runUntilDrained(t, mockMQ, mockMailer)

	mockMQ.AssertNumberOfCalls(t, "Receive", 3)
}
