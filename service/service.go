package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/apperr"
	"github.com/zlnvch/collabdocs/cache"
	"github.com/zlnvch/collabdocs/logger"
	"github.com/zlnvch/collabdocs/mailer"
	"github.com/zlnvch/collabdocs/mq"
	"github.com/zlnvch/collabdocs/store"
)

type Options struct {
	TokenTTL      time.Duration
	ResetTokenTTL time.Duration
	// FrontendURL is the base of the reset link sent by mail.
	FrontendURL string
}

type Service struct {
	Users       store.IdentityStore
	Documents   store.DocumentStore
	ResetTokens store.ResetTokenStore
	Cache       cache.Cache
	MailQueue   mq.MessageQueue
	Mailer      mailer.Mailer
	JWTSecret   []byte
	Options     Options

	log *logger.ContextLogger
	now func() time.Time
}

func NewService(
	users store.IdentityStore,
	documents store.DocumentStore,
	resetTokens store.ResetTokenStore,
	cache cache.Cache,
	mailQueue mq.MessageQueue,
	mailer mailer.Mailer,
	jwtSecret []byte,
	options Options,
	log *zap.Logger,
) *Service {
	if options.TokenTTL <= 0 {
		options.TokenTTL = 24 * time.Hour
	}
	if options.ResetTokenTTL <= 0 {
		options.ResetTokenTTL = time.Hour
	}

	return &Service{
		Users:       users,
		Documents:   documents,
		ResetTokens: resetTokens,
		Cache:       cache,
		MailQueue:   mailQueue,
		Mailer:      mailer,
		JWTSecret:   jwtSecret,
		Options:     options,
		log:         logger.NewContextLogger(log),
		now:         time.Now,
	}
}

// SetClock replaces the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// publish sends msg on channel from a background goroutine; the caller has
// already committed its store write.
func (s *Service) publish(channel string, msg any) {
	go func() {
		msgBytes, err := json.Marshal(msg)
		if err != nil {
			return
		}
		if err := s.Cache.Publish(context.Background(), channel, msgBytes); err != nil {
			s.log.Logger().Warn("publish failed",
				zap.String("channel", channel),
				zap.Error(apperr.BestEffort(err, "publish failed")),
			)
		}
	}()
}

func (s *Service) publishUserUpdated(userId string) {
	s.publish(cache.ChannelUserUpdated, cache.UserUpdatedMessage{UserId: userId})
}

// PublishSessionsCleared asks every server process to terminate its
// sessions.
func (s *Service) PublishSessionsCleared(reason string) {
	s.publish(cache.ChannelSessionsCleared, cache.SessionsClearedMessage{Reason: reason})
}
