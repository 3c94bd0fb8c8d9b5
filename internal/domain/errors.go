package domain

import "errors"

var (
	ErrLockHeld       = errors.New("lock already held")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrNotConnected   = errors.New("not connected")
	ErrUndefinedQuote = errors.New("quote undefined for reserves")
	ErrNoBalance      = errors.New("no token balance")
	ErrBrokerRejected = errors.New("broker rejected trade")
	ErrUnconfirmed    = errors.New("transaction not confirmed")
	ErrTxFailed       = errors.New("transaction failed on chain")
)
