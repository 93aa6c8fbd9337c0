package domain

import "errors"

var (
	ErrMalformedVote    = errors.New("malformed vote record")
	ErrQueueUnavailable = errors.New("queue unavailable")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreFatal       = errors.New("store configuration error")
)
