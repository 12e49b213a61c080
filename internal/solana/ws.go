package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeAccount subscribes to lamport/data changes of an account.
	SubscribeAccount(ctx context.Context, pubkey string) (*AccountSubscription, error)

	// Unsubscribe removes the subscription. Unknown or already removed
	// subscriptions are ignored.
	Unsubscribe(ctx context.Context, sub *AccountSubscription) error

	// Close closes the WebSocket connection.
	Close() error
}

// AccountNotification represents an accountNotification message.
// Err is set when the payload for this subscription could not be decoded.
type AccountNotification struct {
	Slot     int64
	Lamports uint64
	Err      error
}

// AccountSubscription is a live account change stream.
// Notifications are delivered in the order the endpoint produced them.
// Done is closed when the subscription is removed or the client is closed.
type AccountSubscription struct {
	Pubkey        string
	Notifications <-chan AccountNotification
	Done          <-chan struct{}

	key uint64
}

// NewAccountSubscription builds a subscription handle for WSClient
// implementations outside this package.
func NewAccountSubscription(key uint64, pubkey string, notifications <-chan AccountNotification, done <-chan struct{}) *AccountSubscription {
	return &AccountSubscription{
		Pubkey:        pubkey,
		Notifications: notifications,
		Done:          done,
		key:           key,
	}
}

// Key returns the client-local identifier of the subscription.
func (s *AccountSubscription) Key() uint64 {
	if s == nil {
		return 0
	}
	return s.key
}
