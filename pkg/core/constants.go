package core

import "errors"

// Errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUntrustedBook    = errors.New("book is not trusted")
	ErrInvalidState     = errors.New("order is not active")
	ErrSelfFill         = errors.New("cannot fill own order")
	ErrTransferFailed   = errors.New("transfer failed")
	ErrSignatureInvalid = errors.New("invalid signature")
	ErrDomainMismatch   = errors.New("wrong destination domain")
	ErrNonexistentOrder = errors.New("nonexistent order")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNonceUsed        = errors.New("nonce already used")
	ErrInvalidPayload   = errors.New("payload does not match stored hash")
	ErrNoFailedMessage  = errors.New("no failed message stored")
)
