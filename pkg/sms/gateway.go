package sms

import "context"

// Gateway defines the interface for sending SMS messages
type Gateway interface {
	// Send delivers one message to every phone number.
	// Returns a gateway transaction id and an error if the send failed
	Send(ctx context.Context, phones []string, message string) (string, error)

	// Name returns the name of the SMS gateway implementation
	Name() string
}
