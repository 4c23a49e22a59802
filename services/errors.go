package services

import "errors"

// Caller and payload errors. Signature verification failure is deliberately
// not in this list: processors routinely retry malformed or test callbacks,
// so a failed check is an outcome value, never an error.
var (
	// ErrGatewayNotFound: no redsys gateway among the merchant's payment methods
	ErrGatewayNotFound = errors.New("gateway not found")
	// ErrInvalidOrigin: the origin reference cannot be resolved to a record
	ErrInvalidOrigin = errors.New("invalid origin")
	// ErrAmountUnavailable: the origin record cannot report a total amount
	ErrAmountUnavailable = errors.New("amount unavailable")
	// ErrMissingAmount: no origin and no amount supplied by the caller
	ErrMissingAmount = errors.New("missing amount")
	// ErrInvalidAmount: the supplied amount is not a positive decimal
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrMalformedPayload: the notification envelope cannot be decoded
	ErrMalformedPayload = errors.New("malformed payload")
)
