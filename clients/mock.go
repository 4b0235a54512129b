package clients

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockMessagingClient is a mock implementation of the MessagingClient interface
type MockMessagingClient struct {
	mock.Mock
}

func (m *MockMessagingClient) AuthTest(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockMessagingClient) PostMessage(
	ctx context.Context,
	req PostMessageRequest,
) (*PostMessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PostMessageResponse), args.Error(1)
}

func (m *MockMessagingClient) DeleteMessage(ctx context.Context, channel, ts string) error {
	args := m.Called(ctx, channel, ts)
	return args.Error(0)
}

func (m *MockMessagingClient) RemoveReaction(ctx context.Context, channel, ts, reaction string) error {
	args := m.Called(ctx, channel, ts, reaction)
	return args.Error(0)
}
