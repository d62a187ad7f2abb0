package service

import (
	"context"

	"github.com/carbnb/availability/internal/domain"
)

// ContactDirectory looks up the contact details that are snapshotted into
// a booking. repo.UserDirectory satisfies it.
type ContactDirectory interface {
	GetContactInfo(ctx context.Context, userID string) (domain.Contact, error)
}

// Notifier delivers a notification to one user. Delivery is fire and
// forget; an error only means the message was not handed off.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// ChatPoster posts a system message into the conversation between owner
// and renter.
type ChatPoster interface {
	PostSystemMessage(ctx context.Context, conversationID, text string) error
}
