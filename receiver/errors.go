package receiver

import "errors"

// Every rejection reason the pipeline can produce. Staleness and duplicate
// delivery are expected outcomes, not faults; callers drop the envelope and
// move on.
var (
	ErrInvalidMessage               = errors.New("receiver: invalid message")
	ErrNoData                       = errors.New("receiver: envelope has no content")
	ErrUnknownMessage               = errors.New("receiver: no message kind matched")
	ErrDeprecatedMessage            = errors.New("receiver: deprecated message")
	ErrInvalidConfigMessageHandling = errors.New("receiver: config message reached the standard path")
	ErrSenderBlocked                = errors.New("receiver: sender is blocked")
	ErrSelfSend                     = errors.New("receiver: message sent to self")
	ErrOutdatedMessage              = errors.New("receiver: outdated message")
)
