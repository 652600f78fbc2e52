package receiver

import (
	"fmt"
	"strconv"

	"github.com/sesh-im/go-sesh/ids"
	"github.com/sesh-im/go-sesh/wire"
)

// ProcessedMessage is the result of Parse. Config messages pass through
// undecoded; standard messages carry a fully decoded Message.
type ProcessedMessage interface {
	// UniqueIdentifier names this message within its origin, for dedup
	// bookkeeping by the caller.
	UniqueIdentifier() string
}

// ConfigMessage is an opaque config blob fetched from a config namespace.
// Its payload is returned byte-identical for the config subsystem to merge.
type ConfigMessage struct {
	Namespace         Namespace
	PublicKey         ids.ID
	ServerHash        string
	ServerTimestampMs uint64
	Data              []byte
}

func (m *ConfigMessage) UniqueIdentifier() string { return m.ServerHash }

// StandardMessage is a decrypted, decoded message bound to its thread.
type StandardMessage struct {
	ThreadID      string
	ThreadVariant ThreadVariant
	Content       *wire.Content
	Message       *Message

	uniqueID string
}

func (m *StandardMessage) UniqueIdentifier() string { return m.uniqueID }

func (r *Receiver) parse(data []byte, origin Origin) (ProcessedMessage, error) {
	pm, err := r.parseOrigin(data, origin)
	if err != nil {
		return nil, err
	}
	parsedCounter.WithLabelValues(origin.originLabel()).Inc()
	return pm, nil
}

func (r *Receiver) parseOrigin(data []byte, origin Origin) (ProcessedMessage, error) {
	switch o := origin.(type) {
	case SwarmOrigin:
		return r.parseSwarm(data, o)
	case *SwarmOrigin:
		return r.parseSwarm(data, *o)
	case CommunityOrigin:
		return r.parseCommunity(data, o)
	case *CommunityOrigin:
		return r.parseCommunity(data, *o)
	case InboxOrigin:
		return r.parseInbox(data, o)
	case *InboxOrigin:
		return r.parseInbox(data, *o)
	default:
		return nil, fmt.Errorf("receiver: unknown origin %T", origin)
	}
}

func (r *Receiver) parseSwarm(data []byte, o SwarmOrigin) (ProcessedMessage, error) {
	if o.Namespace.IsConfig() {
		return &ConfigMessage{
			Namespace:         o.Namespace,
			PublicKey:         o.PublicKey,
			ServerHash:        o.ServerHash,
			ServerTimestampMs: o.ServerTimestampMs,
			Data:              data,
		}, nil
	}

	switch o.Namespace {
	case NamespaceLegacyClosedGroup:
		return nil, ErrDeprecatedMessage
	case NamespaceRevokedRetrievableGroupMessages:
		// a retrievable ciphertext in the revoked namespace means this member
		// may have been removed; defer decryption to the handler
		return &StandardMessage{
			ThreadID:      o.PublicKey.String(),
			ThreadVariant: ThreadGroup,
			Message: &Message{
				Sender:              o.PublicKey,
				ServerHash:          o.ServerHash,
				ReceivedTimestampMs: r.clock.CurrentTimeMs(),
				Body:                &LibSessionMessage{GroupID: o.PublicKey, Ciphertext: data},
			},
			uniqueID: o.ServerHash,
		}, nil
	case NamespaceDefault:
		if len(data) == 0 {
			return nil, ErrNoData
		}
		env, err := wire.UnwrapEnvelope(data)
		if err != nil {
			r.log.Warnf("dropping malformed envelope from %s: %s", o.PublicKey, err)
			return nil, fmt.Errorf("%w: %s", ErrInvalidMessage, err)
		}
		if env.Type != wire.EnvelopeSessionMessage {
			return nil, fmt.Errorf("%w: envelope type %d in default namespace", ErrInvalidMessage, env.Type)
		}
		plaintext, sender, err := r.crypto.DecryptSessionProtocol(env.Content)
		if err != nil {
			r.log.Warnf("dropping undecryptable message %s: %s", o.ServerHash, err)
			return nil, err
		}
		content, err := decodePadded(plaintext)
		if err != nil {
			return nil, err
		}
		if content.SigTimestamp != 0 && content.SigTimestamp != env.Timestamp {
			return nil, fmt.Errorf("%w: signature timestamp %d disagrees with envelope %d", ErrInvalidMessage, content.SigTimestamp, env.Timestamp)
		}
		threadID := sender.String()
		if sender == r.localID && content.DataMessage != nil && content.DataMessage.SyncTarget != "" {
			threadID = content.DataMessage.SyncTarget
		}
		return r.finishStandard(content, sender, threadID, ThreadContact, env.Timestamp, o.ServerHash, swarmMeta{})
	case NamespaceGroupMessages:
		if len(data) == 0 {
			return nil, ErrNoData
		}
		envBytes, sender, err := r.crypto.DecryptGroupMessage(o.PublicKey, data)
		if err != nil {
			r.log.Warnf("dropping undecryptable group message %s: %s", o.ServerHash, err)
			return nil, err
		}
		env, err := wire.DecodeEnvelope(envBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidMessage, err)
		}
		if env.Type != wire.EnvelopeGroupMessage {
			return nil, fmt.Errorf("%w: envelope type %d in group namespace", ErrInvalidMessage, env.Type)
		}
		content, err := decodePadded(env.Content)
		if err != nil {
			return nil, err
		}
		return r.finishStandard(content, sender, o.PublicKey.String(), ThreadGroup, env.Timestamp, o.ServerHash, swarmMeta{})
	default:
		// config namespaces are handled above; anything else here means the
		// poller routed a namespace this pipeline doesn't own
		return nil, ErrInvalidConfigMessageHandling
	}
}

func (r *Receiver) parseCommunity(data []byte, o CommunityOrigin) (ProcessedMessage, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}
	content, err := decodePadded(data)
	if err != nil {
		return nil, err
	}
	return r.finishStandard(content, o.Sender, o.OpenGroupID, ThreadCommunity, o.TimestampMs,
		strconv.FormatUint(o.ServerMessageID, 10), swarmMeta{
			serverMessageID: o.ServerMessageID,
			whisper:         o.Whisper,
			whisperMods:     o.WhisperMods,
			whisperTo:       o.WhisperTo,
		})
}

func (r *Receiver) parseInbox(data []byte, o InboxOrigin) (ProcessedMessage, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}
	plaintext, sender, err := r.crypto.DecryptBlindedInbox(data, o.SenderID, o.RecipientID, o.ServerPublicKey)
	if err != nil {
		r.log.Warnf("dropping undecryptable inbox message %d: %s", o.ServerMessageID, err)
		return nil, err
	}
	content, err := decodePadded(plaintext)
	if err != nil {
		return nil, err
	}
	return r.finishStandard(content, sender, sender.String(), ThreadContact, o.TimestampMs,
		strconv.FormatUint(o.ServerMessageID, 10), swarmMeta{serverMessageID: o.ServerMessageID})
}

type swarmMeta struct {
	serverMessageID uint64
	whisper         bool
	whisperMods     bool
	whisperTo       string
}

func (r *Receiver) finishStandard(content *wire.Content, sender ids.ID, threadID string, variant ThreadVariant, sentTimestampMs uint64, uniqueID string, meta swarmMeta) (*StandardMessage, error) {
	body, err := bodyFromContent(content)
	if err != nil {
		return nil, err
	}
	kind := body.Kind()
	if r.state.IsContactBlocked(sender) && !kind.processableWithBlockedSender() {
		return nil, ErrSenderBlocked
	}
	if sender == r.localID && !kind.allowsSelfSend() {
		return nil, ErrSelfSend
	}
	if variant == ThreadCommunity && kind != KindVisibleMessage {
		return nil, fmt.Errorf("%w: %s in a community", ErrInvalidMessage, kind)
	}
	if !body.isValid() {
		return nil, fmt.Errorf("%w: %s failed validation", ErrInvalidMessage, kind)
	}

	var disappearing *DisappearingConfig
	// community threads never disappear; skip the snapshot there
	if variant != ThreadCommunity && content.HasExpirationFields() {
		disappearing = &DisappearingConfig{Type: content.ExpirationType, DurationSec: content.ExpirationTimer}
	}

	var serverHash string
	if variant != ThreadCommunity && meta.serverMessageID == 0 {
		serverHash = uniqueID
	}
	return &StandardMessage{
		ThreadID:      threadID,
		ThreadVariant: variant,
		Content:       content,
		Message: &Message{
			Sender:              sender,
			ServerHash:          serverHash,
			SentTimestampMs:     sentTimestampMs,
			SigTimestampMs:      content.SigTimestamp,
			ReceivedTimestampMs: r.clock.CurrentTimeMs(),
			ServerMessageID:     meta.serverMessageID,
			Whisper:             meta.whisper,
			WhisperMods:         meta.whisperMods,
			WhisperTo:           meta.whisperTo,
			Disappearing:        disappearing,
			Body:                body,
		},
		uniqueID: uniqueID,
	}, nil
}

func decodePadded(plaintext []byte) (*wire.Content, error) {
	unpadded, err := wire.StripPadding(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMessage, err)
	}
	content, err := wire.DecodeContent(unpadded)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMessage, err)
	}
	return content, nil
}
