package core

//go:generate mockgen -destination=mocks/signal_mock.go -package=mocks . SignalingClient,ProfileProvider

import (
	"context"

	"github.com/dkeye/VoiceCall/internal/domain"
)

// SignalingClient abstracts the messaging transport to the call server.
// Owned by the adapter; the session must Close() it on endCall.
type SignalingClient interface {
	// Connect opens the connection; inbound events start flowing on Events.
	Connect(ctx context.Context) error
	// Events returns the stream of validated inbound events. It is closed when the connection ends.
	Events() <-chan domain.Event
	// JoinRoom requests room entry and returns the atomic room snapshot.
	JoinRoom(ctx context.Context, req domain.JoinRequest) (*domain.JoinSnapshot, error)
	LeaveRoom(ctx context.Context) error
	// Send emits a local state notification.
	Send(ctx context.Context, ev domain.Outbound) error
	Close()
}

// ProfileProvider resolves presentation fields of a user.
type ProfileProvider interface {
	GetProfile(ctx context.Context, id domain.UserID) (domain.Profile, error)
}
