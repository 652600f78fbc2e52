package receiver

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sesh-im/go-sesh/crypto"
)

var (
	parsedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sesh",
		Subsystem: "receiver",
		Name:      "parsed_total",
		Help:      "Messages successfully parsed, by origin.",
	}, []string{"origin"})
	rejectedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sesh",
		Subsystem: "receiver",
		Name:      "rejected_total",
		Help:      "Messages rejected by the pipeline, by reason.",
	}, []string{"reason"})
	handledCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sesh",
		Subsystem: "receiver",
		Name:      "handled_total",
		Help:      "Messages handled to completion, by kind.",
	}, []string{"kind"})
)

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrSenderBlocked):
		return "blocked"
	case errors.Is(err, ErrSelfSend):
		return "selfSend"
	case errors.Is(err, ErrOutdatedMessage):
		return "outdated"
	case errors.Is(err, ErrDeprecatedMessage):
		return "deprecated"
	case errors.Is(err, ErrNoData):
		return "noData"
	case errors.Is(err, ErrUnknownMessage):
		return "unknownKind"
	case errors.Is(err, ErrInvalidConfigMessageHandling):
		return "configMishandled"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid"
	case errors.Is(err, crypto.ErrDecryptFailed):
		return "decryptFailed"
	default:
		return "other"
	}
}
