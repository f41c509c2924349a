// Package push delivers approval requests to enrolled devices.
//
// Senders talk to one backend (FCM, Kafka, or the log). The Dispatcher runs
// them on a worker pool so that callers never wait on a push provider.
package push

import (
	"context"
	"fmt"

	"pushgate/pkg/domain"
)

const (
	loginRequestTitle = "Login Request"
	DataTransactionID = "transactionId"
)

// Message is one notification to one device.
type Message struct {
	TransactionID domain.TransactionID `json:"transactionId"`
	Token         string               `json:"token"`
	Title         string               `json:"title"`
	Body          string               `json:"body"`
	Data          map[string]string    `json:"data,omitempty"`
}

// NewLoginRequest builds the approval prompt for a login transaction.
func NewLoginRequest(token string, id domain.TransactionID) Message {
	return Message{
		TransactionID: id,
		Token:         token,
		Title:         loginRequestTitle,
		Body:          fmt.Sprintf("A login request was made for your account. Transaction ID: %s", id),
		Data:          map[string]string{DataTransactionID: id.String()},
	}
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}
