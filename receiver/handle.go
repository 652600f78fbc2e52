package receiver

import (
	"github.com/sesh-im/go-sesh/wire"
)

// handle runs the interceptor chain and dispatches by kind. It assumes a
// transaction is open and re-checks staleness so that Parse and Handle can be
// run in separate transactions by pollers that batch fetches.
func (r *Receiver) handle(m *StandardMessage) (*InsertedInteractionInfo, error) {
	if err := r.checkOutdated(m); err != nil {
		return nil, err
	}
	msg := m.Message
	kind := msg.Kind()

	if m.Content != nil && msg.Sender != r.localID {
		// track which disappearing protocol generation the sender speaks
		version := uint8(1)
		if m.Content.HasExpirationFields() {
			version = 2
		}
		if err := r.store.setDisappearingVersion(msg.Sender.String(), version); err != nil {
			return nil, err
		}
		if dm := m.Content.DataMessage; dm != nil && dm.Profile != nil {
			if err := r.store.applyProfile(msg.Sender.String(), dm.Profile); err != nil {
				return nil, err
			}
		}
		if mrr := m.Content.MessageRequestResponse; mrr != nil && mrr.Profile != nil {
			if err := r.store.applyProfile(msg.Sender.String(), mrr.Profile); err != nil {
				return nil, err
			}
		}
	}

	for _, i := range r.interceptors {
		handled, err := i(m)
		if err != nil {
			return nil, err
		}
		if handled {
			handledCounter.WithLabelValues("intercepted").Inc()
			return nil, nil
		}
	}

	var (
		info *InsertedInteractionInfo
		err  error
	)
	switch b := msg.Body.(type) {
	case *VisibleMessage:
		info, err = r.handleVisible(m, b)
	case *ReadReceipt:
		err = r.handleReadReceipt(m, b)
	case *TypingIndicator:
		err = r.handleTypingIndicator(m, b)
	case *GroupInvite:
		info, err = r.handleGroupInvite(m, b)
	case *GroupInfoChange:
		info, err = r.handleGroupInfoChange(m, b)
	case *GroupMemberChange:
		info, err = r.handleGroupMemberChange(m, b)
	case *GroupPromote:
		info, err = r.handleGroupPromote(m, b)
	case *GroupMemberLeft:
		info, err = r.insertInfoInteraction(m)
	case *GroupInviteResponse:
		info, err = r.insertInfoInteraction(m)
	case *GroupDeleteMemberContent:
		err = r.handleGroupDeleteMemberContent(m, b)
	case *DataExtraction:
		info, err = r.insertInfoInteraction(m)
	case *ExpirationTimerUpdate:
		info, err = r.handleExpirationTimerUpdate(m)
	case *UnsendRequest:
		err = r.handleUnsendRequest(m, b)
	case *CallMessage:
		info, err = r.handleCallMessage(m, b)
	case *MessageRequestResponse:
		info, err = r.handleMessageRequestResponse(m, b)
	case *LibSessionMessage:
		err = r.handleLibSessionMessage(b)
	default:
		return nil, ErrUnknownMessage
	}
	if err != nil {
		return nil, err
	}
	if err := r.finalize(m, info); err != nil {
		return nil, err
	}
	handledCounter.WithLabelValues(kind.String()).Inc()
	return info, nil
}

func (r *Receiver) handleVisible(m *StandardMessage, b *VisibleMessage) (*InsertedInteractionInfo, error) {
	msg := m.Message
	if _, err := r.store.ensureThread(m.ThreadID, m.ThreadVariant); err != nil {
		return nil, err
	}

	if rx := b.Data.Reaction; rx != nil && b.Data.Text == "" && len(b.Data.Attachments) == 0 {
		exists, err := r.store.interactionExistsAt(m.ThreadID, rx.Timestamp)
		if err != nil {
			return nil, err
		}
		if !exists {
			r.log.Debugf("reaction from %s targets no interaction at %d, dropping", msg.Sender, rx.Timestamp)
			return nil, nil
		}
		if err := r.store.upsertReaction(m.ThreadID, rx.Timestamp, msg.Sender.String(), rx.Emoji, rx.Action); err != nil {
			return nil, err
		}
		return nil, nil
	}

	exists, err := r.store.interactionExists(m.ThreadID, msg.Sender.String(), msg.SentTimestampMs)
	if err != nil {
		return nil, err
	}
	if exists {
		r.log.Debugf("interaction for %s@%d already present, skipping", msg.Sender, msg.SentTimestampMs)
		return nil, nil
	}

	previous, err := r.store.countInteractions(m.ThreadID)
	if err != nil {
		return nil, err
	}

	wasRead := msg.Sender == r.localID
	var expiresAt uint64
	if d := msg.Disappearing; d != nil && d.Type == wire.ExpirationAfterSend && d.DurationSec > 0 {
		expiresAt = msg.SentTimestampMs + uint64(d.DurationSec)*1000
	}
	id, err := r.store.insertInteraction(&interaction{
		ThreadID:       m.ThreadID,
		Sender:         msg.Sender.String(),
		Kind:           interactionVisible,
		Body:           b.Data.Text,
		TimestampMs:    msg.SentTimestampMs,
		ReceivedAtMs:   msg.ReceivedTimestampMs,
		ExpiresAtMs:    expiresAt,
		Read:           wasRead,
		HasAttachments: len(b.Data.Attachments) > 0,
	})
	if err != nil {
		return nil, err
	}
	return &InsertedInteractionInfo{
		InteractionID: id,
		ThreadID:      m.ThreadID,
		WasRead:       wasRead,
		NumPreviousInteractionsForMessageRequest: previous,
	}, nil
}

func (r *Receiver) handleReadReceipt(m *StandardMessage, b *ReadReceipt) error {
	n, err := r.store.markInteractionsRead(m.ThreadID, b.Data.Timestamps)
	if err != nil {
		return err
	}
	r.log.Debugf("marked %d of %d interactions read in %s", n, len(b.Data.Timestamps), m.ThreadID)
	return nil
}

func (r *Receiver) handleTypingIndicator(m *StandardMessage, b *TypingIndicator) error {
	r.sendUpdate(TypingUpdate{
		ThreadID: m.ThreadID,
		Sender:   m.Message.Sender,
		Started:  b.Data.Action == 0,
	})
	return nil
}

func (r *Receiver) handleGroupInvite(m *StandardMessage, b *GroupInvite) (*InsertedInteractionInfo, error) {
	groupThreadID := b.Data.GroupID
	if _, err := r.store.ensureThread(groupThreadID, ThreadGroup); err != nil {
		return nil, err
	}
	if err := r.store.upsertGroup(&group{
		ID:       groupThreadID,
		Name:     b.Data.Name,
		AuthData: b.Data.MemberKey,
	}); err != nil {
		return nil, err
	}
	return r.insertInfoInteractionAt(m, groupThreadID, ThreadGroup)
}

func (r *Receiver) handleGroupInfoChange(m *StandardMessage, b *GroupInfoChange) (*InsertedInteractionInfo, error) {
	switch b.Data.Kind {
	case 1:
		if err := r.store.setGroupName(m.ThreadID, b.Data.Name); err != nil {
			return nil, err
		}
	case 3:
		typ := wire.ExpirationNone
		if b.Data.ExpirationTimer > 0 {
			typ = wire.ExpirationAfterSend
		}
		if _, err := r.store.ensureThread(m.ThreadID, m.ThreadVariant); err != nil {
			return nil, err
		}
		if err := r.store.setThreadDisappearing(m.ThreadID, typ, b.Data.ExpirationTimer); err != nil {
			return nil, err
		}
	}
	return r.insertInfoInteraction(m)
}

func (r *Receiver) handleGroupMemberChange(m *StandardMessage, b *GroupMemberChange) (*InsertedInteractionInfo, error) {
	if b.Data.Kind == 2 {
		local := r.localID.String()
		for _, member := range b.Data.Members {
			if member == local {
				if err := r.store.setGroupKicked(m.ThreadID); err != nil {
					return nil, err
				}
				break
			}
		}
	}
	return r.insertInfoInteraction(m)
}

func (r *Receiver) handleGroupPromote(m *StandardMessage, b *GroupPromote) (*InsertedInteractionInfo, error) {
	g, err := r.store.group(m.ThreadID)
	if err != nil {
		g = &group{ID: m.ThreadID}
	}
	g.AuthData = b.Data.AdminKey
	if err := r.store.upsertGroup(g); err != nil {
		return nil, err
	}
	return r.insertInfoInteraction(m)
}

func (r *Receiver) handleGroupDeleteMemberContent(m *StandardMessage, b *GroupDeleteMemberContent) error {
	for _, ts := range b.Data.Timestamps {
		if _, err := r.store.markInteractionDeletedByTimestamp(m.ThreadID, ts); err != nil {
			return err
		}
	}
	for _, member := range b.Data.MemberIDs {
		if _, err := r.store.markInteractionsDeletedBySender(m.ThreadID, member); err != nil {
			return err
		}
	}
	return nil
}

func (r *Receiver) handleExpirationTimerUpdate(m *StandardMessage) (*InsertedInteractionInfo, error) {
	if _, err := r.store.ensureThread(m.ThreadID, m.ThreadVariant); err != nil {
		return nil, err
	}
	if d := m.Message.Disappearing; d != nil {
		if err := r.store.setThreadDisappearing(m.ThreadID, d.Type, d.DurationSec); err != nil {
			return nil, err
		}
	} else {
		if err := r.store.setThreadDisappearing(m.ThreadID, wire.ExpirationNone, 0); err != nil {
			return nil, err
		}
	}
	return r.insertInfoInteraction(m)
}

func (r *Receiver) handleUnsendRequest(m *StandardMessage, b *UnsendRequest) error {
	deleted, err := r.store.markInteractionDeleted(m.ThreadID, b.Data.Author, b.Data.Timestamp)
	if err != nil {
		return err
	}
	if !deleted {
		r.log.Debugf("unsend for %s@%d matched nothing in %s", b.Data.Author, b.Data.Timestamp, m.ThreadID)
	}
	return nil
}

func (r *Receiver) handleCallMessage(m *StandardMessage, b *CallMessage) (*InsertedInteractionInfo, error) {
	// only terminal call messages leave a record; offers, answers and
	// candidates are signaling
	if b.Data.Kind != 4 {
		return nil, nil
	}
	return r.insertInfoInteractionKind(m, m.ThreadID, m.ThreadVariant, interactionCall, b.Data.UUID)
}

func (r *Receiver) handleMessageRequestResponse(m *StandardMessage, b *MessageRequestResponse) (*InsertedInteractionInfo, error) {
	if b.Data.Approved {
		if err := r.store.setContactApproved(m.Message.Sender.String(), true); err != nil {
			return nil, err
		}
	}
	return r.insertInfoInteraction(m)
}

// handleLibSessionMessage probes a revoked-namespace ciphertext. If our
// member key still opens it the group has revoked us.
func (r *Receiver) handleLibSessionMessage(b *LibSessionMessage) error {
	if _, _, err := r.crypto.DecryptGroupMessage(b.GroupID, b.Ciphertext); err != nil {
		r.log.Debugf("revoked-namespace message for %s not addressed to us", b.GroupID)
		return nil
	}
	r.log.Infof("revocation for group %s, marking kicked", b.GroupID)
	return r.store.setGroupKicked(b.GroupID.String())
}

func (r *Receiver) insertInfoInteraction(m *StandardMessage) (*InsertedInteractionInfo, error) {
	return r.insertInfoInteractionAt(m, m.ThreadID, m.ThreadVariant)
}

func (r *Receiver) insertInfoInteractionAt(m *StandardMessage, threadID string, variant ThreadVariant) (*InsertedInteractionInfo, error) {
	return r.insertInfoInteractionKind(m, threadID, variant, interactionInfo, "")
}

func (r *Receiver) insertInfoInteractionKind(m *StandardMessage, threadID string, variant ThreadVariant, kind uint8, body string) (*InsertedInteractionInfo, error) {
	msg := m.Message
	if _, err := r.store.ensureThread(threadID, variant); err != nil {
		return nil, err
	}
	exists, err := r.store.interactionExists(threadID, msg.Sender.String(), msg.SentTimestampMs)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	previous, err := r.store.countInteractions(threadID)
	if err != nil {
		return nil, err
	}
	wasRead := msg.Sender == r.localID
	id, err := r.store.insertInteraction(&interaction{
		ThreadID:     threadID,
		Sender:       msg.Sender.String(),
		Kind:         kind,
		Body:         body,
		TimestampMs:  msg.SentTimestampMs,
		ReceivedAtMs: msg.ReceivedTimestampMs,
		Read:         wasRead,
	})
	if err != nil {
		return nil, err
	}
	return &InsertedInteractionInfo{
		InteractionID: id,
		ThreadID:      threadID,
		WasRead:       wasRead,
		NumPreviousInteractionsForMessageRequest: previous,
	}, nil
}
