// Package mocks provides testify mocks for the domain ports.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vettly/match-explainer/internal/domain"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// UserRepository is a mock of domain.UserRepository.
type UserRepository struct{ mock.Mock }

// NewUserRepository creates a mock and asserts its expectations on cleanup.
func NewUserRepository(t testingT) *UserRepository {
	m := &UserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *UserRepository) Get(ctx context.Context, id string) (domain.UserProfile, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(domain.UserProfile)
	return p, args.Error(1)
}

// MatchRepository is a mock of domain.MatchRepository.
type MatchRepository struct{ mock.Mock }

// NewMatchRepository creates a mock and asserts its expectations on cleanup.
func NewMatchRepository(t testingT) *MatchRepository {
	m := &MatchRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MatchRepository) SaveExplanation(ctx context.Context, matchID string, u domain.MatchExplanationUpdate) error {
	args := m.Called(ctx, matchID, u)
	return args.Error(0)
}

// ChatClient is a mock of domain.ChatClient.
type ChatClient struct{ mock.Mock }

// NewChatClient creates a mock and asserts its expectations on cleanup.
func NewChatClient(t testingT) *ChatClient {
	m := &ChatClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *ChatClient) Complete(ctx context.Context, req domain.ChatRequest) (domain.ChatResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(domain.ChatResult)
	return r, args.Error(1)
}

// Monitor is a mock of domain.Monitor.
type Monitor struct{ mock.Mock }

// NewMonitor creates a mock and asserts its expectations on cleanup.
func NewMonitor(t testingT) *Monitor {
	m := &Monitor{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Monitor) LogSuccess(ctx context.Context, ev domain.MetricsEvent) {
	m.Called(ctx, ev)
}

func (m *Monitor) LogError(ctx context.Context, ev domain.ErrorEvent) {
	m.Called(ctx, ev)
}
