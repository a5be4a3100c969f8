package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/mailer"
	"github.com/zlnvch/collabdocs/metrics"
	"github.com/zlnvch/collabdocs/mq"
)

type MailKind string

const MailPasswordChanged MailKind = "password_changed"

// MailMessage is the queued body of a best-effort notification mail.
type MailMessage struct {
	Kind     MailKind `json:"kind"`
	To       string   `json:"to"`
	UserName string   `json:"userName"`
}

type MailConsumer struct {
	mailQueue mq.MessageQueue
	mailer    mailer.Mailer
	logger    *zap.Logger
}

func NewMailConsumer(mailQueue mq.MessageQueue, mailer mailer.Mailer, logger *zap.Logger) *MailConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailConsumer{
		mailQueue: mailQueue,
		mailer:    mailer,
		logger:    logger,
	}
}

// Enough for one SMTP round trip. Undeleted messages come back after this.
const visibilityTimeout = 60

var errUnknownMail = errors.New("unknown mail kind")

// Run polls the mail queue until shutdownCtx is cancelled.
func (mailConsumer *MailConsumer) Run(shutdownCtx context.Context) {
	for {
		msg, err := mailConsumer.mailQueue.Receive(shutdownCtx, visibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			mailConsumer.logger.Error("mail queue receive failed", zap.Error(err))
			continue
		}

		if msg == nil {
			continue
		}

		mailConsumer.process(msg)
	}
}

func (mailConsumer *MailConsumer) process(msg *mq.Message) {
	var mailMsg MailMessage
	if err := json.Unmarshal([]byte(msg.Body), &mailMsg); err != nil {
		// Undecodable messages can never succeed
		mailConsumer.logger.Warn("dropping malformed mail message", zap.Error(err))
		mailConsumer.deleteMessage(msg)
		return
	}

	// timeout should be a little less than queue visibility timeout
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(visibilityTimeout-1)*time.Second)
	defer cancel()

	err := mailConsumer.send(ctx, mailMsg)
	switch {
	case errors.Is(err, errUnknownMail):
		mailConsumer.logger.Warn("dropping mail message", zap.String("kind", string(mailMsg.Kind)))
		metrics.MailJobs.WithLabelValues(string(mailMsg.Kind), "dropped").Inc()
	case err != nil:
		// Left on the queue for redelivery
		mailConsumer.logger.Warn("mail delivery failed", zap.String("kind", string(mailMsg.Kind)), zap.Error(err))
		metrics.MailJobs.WithLabelValues(string(mailMsg.Kind), "failed").Inc()
		return
	default:
		metrics.MailJobs.WithLabelValues(string(mailMsg.Kind), "sent").Inc()
	}

	mailConsumer.deleteMessage(msg)
}

func (mailConsumer *MailConsumer) send(ctx context.Context, mailMsg MailMessage) error {
	switch mailMsg.Kind {
	case MailPasswordChanged:
		return mailConsumer.mailer.SendPasswordChanged(ctx, mailMsg.To, mailMsg.UserName)
	}
	return fmt.Errorf("%w: %q", errUnknownMail, mailMsg.Kind)
}

func (mailConsumer *MailConsumer) deleteMessage(msg *mq.Message) {
	if err := mailConsumer.mailQueue.Delete(context.Background(), msg); err != nil {
		mailConsumer.logger.Error("mail queue delete failed", zap.Error(err))
	}
}
