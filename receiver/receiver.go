// Package receiver implements the inbound message pipeline: demultiplexing
// fetched ciphertexts by origin, decrypting them, gating stale messages
// against synced config state, dispatching by kind and finalizing thread
// state afterwards.
package receiver

import (
	"go.uber.org/zap"

	"github.com/sesh-im/go-sesh/clock"
	"github.com/sesh-im/go-sesh/config"
	"github.com/sesh-im/go-sesh/crypto"
	db "github.com/sesh-im/go-sesh/internal/db"
	"github.com/sesh-im/go-sesh/ids"
)

// Interceptor inspects a parsed message before kind dispatch. Returning
// handled=true consumes the message; no interaction is recorded for it.
type Interceptor func(m *StandardMessage) (handled bool, err error)

// TypingUpdate is emitted on the updates channel when a typing indicator
// arrives. It never touches the store.
type TypingUpdate struct {
	ThreadID string
	Sender   ids.ID
	Started  bool
}

// InsertedInteractionInfo describes the interaction row a handled message
// produced, if any.
type InsertedInteractionInfo struct {
	InteractionID int64
	ThreadID      string
	WasRead       bool
	// number of interactions already in the thread before this one, used by
	// message-request notification logic
	NumPreviousInteractionsForMessageRequest int
}

type Receiver struct {
	config       *config.Config
	log          *zap.SugaredLogger
	db           *db.Database
	store        *store
	crypto       crypto.Provider
	state        StateReader
	clock        clock.Clock
	localID      ids.ID
	interceptors []Interceptor
	updates      chan interface{}
}

type Option func(*Receiver)

// WithStateReader overrides the default store-backed state view, letting the
// embedding application answer config queries from its own synced state.
func WithStateReader(s StateReader) Option {
	return func(r *Receiver) {
		r.state = s
	}
}

func WithInterceptor(i Interceptor) Option {
	return func(r *Receiver) {
		r.interceptors = append(r.interceptors, i)
	}
}

func New(c *config.Config, d *db.Database, provider crypto.Provider, cl clock.Clock, localID ids.ID, opts ...Option) (*Receiver, error) {
	s, err := newStore(d)
	if err != nil {
		return nil, err
	}
	r := &Receiver{
		config:  c,
		log:     c.Logger("receiver"),
		db:      d,
		store:   s,
		crypto:  provider,
		clock:   cl,
		localID: localID,
		updates: make(chan interface{}, 100),
	}
	for _, o := range opts {
		o(r)
	}
	if r.state == nil {
		r.state = newStoreState(s)
	}
	return r, nil
}

// Updates delivers side-channel events such as typing indicators.
func (r *Receiver) Updates() <-chan interface{} {
	return r.updates
}

func (r *Receiver) sendUpdate(u interface{}) {
	select {
	case r.updates <- u:
	default:
		r.log.Warnf("updates channel full, dropping %T", u)
	}
}

// Parse demultiplexes and decrypts a fetched payload within its own
// transaction.
func (r *Receiver) Parse(data []byte, origin Origin) (ProcessedMessage, error) {
	var pm ProcessedMessage
	err := r.db.Run("parse message", func() error {
		var err error
		pm, err = r.parse(data, origin)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pm, nil
}

// CheckOutdated reports whether a parsed standard message should be dropped
// as stale.
func (r *Receiver) CheckOutdated(m *StandardMessage) error {
	return r.db.RunReadOnly("check outdated", func() error {
		return r.checkOutdated(m)
	})
}

// Handle dispatches a parsed standard message within its own transaction.
func (r *Receiver) Handle(m *StandardMessage) (*InsertedInteractionInfo, error) {
	var info *InsertedInteractionInfo
	err := r.db.Run("handle message", func() error {
		var err error
		info, err = r.handle(m)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Process runs the full pipeline over one payload in a single transaction.
// Config messages come back for the caller's config subsystem to merge;
// standard messages are handled to completion.
func (r *Receiver) Process(data []byte, origin Origin) (ProcessedMessage, *InsertedInteractionInfo, error) {
	var (
		pm   ProcessedMessage
		info *InsertedInteractionInfo
	)
	err := r.db.Run("process message", func() error {
		var err error
		pm, err = r.parse(data, origin)
		if err != nil {
			return err
		}
		sm, ok := pm.(*StandardMessage)
		if !ok {
			return nil
		}
		if err := r.checkOutdated(sm); err != nil {
			return err
		}
		info, err = r.handle(sm)
		return err
	})
	if err != nil {
		rejectedCounter.WithLabelValues(rejectReason(err)).Inc()
		return nil, nil, err
	}
	return pm, info, nil
}
