package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, to string, userName string, resetURL string) error {
	args := m.Called(ctx, to, userName, resetURL)
	return args.Error(0)
}

func (m *MockMailer) SendPasswordChanged(ctx context.Context, to string, userName string) error {
	args := m.Called(ctx, to, userName)
	return args.Error(0)
}
