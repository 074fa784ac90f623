package service

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned by every store when the requested row does
// not exist (or, for exchanges, is no longer eligible).
var ErrRecordNotFound = errors.New("record not found")

// ClientRegistry handles persistence of registered OAuth clients
type ClientRegistry interface {
	GetClient(ctx context.Context, id string) (*Client, error)
	PutClient(ctx context.Context, client *Client) error
	ListClients(ctx context.Context) ([]Client, error)
}

// AccountStore handles persistence of end-user accounts
type AccountStore interface {
	GetAccount(ctx context.Context, username string) (*Account, error)
	InsertAccount(ctx context.Context, username string, passwordHash []byte) error
}

// ExchangeStore handles persistence of authorization codes.
//
// ApproveExchange, RedeemExchange and VoidExchange are conditional updates:
// they report false when no row was eligible, and at most one concurrent
// caller can observe true for the same transition.
type ExchangeStore interface {
	InsertExchange(ctx context.Context, record *ExchangeRecord) error
	GetExchange(ctx context.Context, code string) (*ExchangeRecord, error)

	// FindRedeemableExchange returns the record only when it matches
	// grantType, is approved, unredeemed, and created at or after notBefore.
	FindRedeemableExchange(ctx context.Context, code string, grantType string, notBefore time.Time) (*ExchangeRecord, error)

	ApproveExchange(ctx context.Context, code string, subject string, notBefore time.Time) (approved bool, err error)
	RedeemExchange(ctx context.Context, code string, grantType string, notBefore time.Time) (redeemed bool, err error)
	VoidExchange(ctx context.Context, code string) (voided bool, err error)

	// PurgeExchanges deletes every record created before the cutoff.
	PurgeExchanges(ctx context.Context, before time.Time) (purged int64, err error)
}
