// Package chat is component C5: the outbound chat port the outbox dispatcher
// sends through. Concrete adapters live in subpackages (telegrambot today).
package chat

import "context"

// InlineButton is one tappable action rendered under a chat message, e.g.
// the traveler's "I take responsibility" acknowledgment button.
type InlineButton struct {
	Text         string
	CallbackData string
}

// SendMessageRequest is a provider-agnostic description of one outbound
// chat message.
type SendMessageRequest struct {
	ChatProviderID string
	Text           string
	Buttons        []InlineButton
	// EditMessageID, when non-empty, asks the adapter to edit an existing
	// message in place instead of sending a new one (spec §4.8 reminder
	// edit-in-place policy).
	EditMessageID string
}

// SendResult carries the provider message id back for outbox bookkeeping.
type SendResult struct {
	ProviderMessageID string
}

// Port is the interface the cascade engine and webhook handler depend on
// (outbox sends reach it through a Sender closure); every concrete chat
// provider adapter implements it.
type Port interface {
	Send(ctx context.Context, req SendMessageRequest) (SendResult, error)
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
