package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	cachemocks "github.com/zlnvch/collabdocs/cache/mocks"
	mailermocks "github.com/zlnvch/collabdocs/mailer/mocks"
	mqmocks "github.com/zlnvch/collabdocs/mq/mocks"
	"github.com/zlnvch/collabdocs/service"
	storemocks "github.com/zlnvch/collabdocs/store/mocks"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testMocks struct {
	users  *storemocks.MockIdentityStore
	docs   *storemocks.MockDocumentStore
	tokens *storemocks.MockResetTokenStore
	cache  *cachemocks.MockCache
	mq     *mqmocks.MockMQ
	mailer *mailermocks.MockMailer
}

// Helper to setup the service with mocks and a fixed clock
func setupService(t *testing.T) (*service.Service, testMocks) {
	m := testMocks{
		users:  new(storemocks.MockIdentityStore),
		docs:   new(storemocks.MockDocumentStore),
		tokens: new(storemocks.MockResetTokenStore),
		cache:  new(cachemocks.MockCache),
		mq:     new(mqmocks.MockMQ),
		mailer: new(mailermocks.MockMailer),
	}

	svc := service.NewService(
		m.users,
		m.docs,
		m.tokens,
		m.cache,
		m.mq,
		m.mailer,
		[]byte("secret"),
		service.Options{FrontendURL: "http://localhost:3000"},
		zap.NewNop(),
	)
	svc.SetClock(func() time.Time { return fixedNow })

	return svc, m
}

// Helper that creates a channel and wraps a mock call to signal when it's called
func wrapMockWithSignal(call *mock.Call) chan struct{} {
	done := make(chan struct{})
	call.Run(func(args mock.Arguments) {
		close(done)
	})
	return done
}

func waitFor(t *testing.T, done chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}
