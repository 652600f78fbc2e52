package receiver

import "github.com/sesh-im/go-sesh/ids"

// checkOutdated decides whether a parsed message lost the race against the
// synced config state and should be dropped. Unknown state never rejects; a
// message only fails the config gate when both queries are answered and both
// say no.
func (r *Receiver) checkOutdated(m *StandardMessage) error {
	kind := m.Message.Kind()

	// receipts and unsends target interactions that predate any watermark
	// moves, so they always pass
	switch kind {
	case KindReadReceipt, KindUnsendRequest:
		return nil
	}

	if m.ThreadVariant == ThreadGroup {
		// these kinds repair or wind down group membership and must land
		// even when our standing in the group, or its place in the synced
		// config, is already gone
		switch kind {
		case KindGroupInviteResponse, KindGroupDeleteMemberContent, KindGroupMemberLeft, KindLibSessionMessage:
			return nil
		}
		if err := r.checkGroupOutdated(m); err != nil {
			return err
		}
	}

	inConfig, configKnown := r.state.ConversationInConfig(m.ThreadID, m.ThreadVariant, true)
	canChange, changeKnown := r.state.CanPerformChange(m.ThreadID, m.ThreadVariant, m.Message.SentTimestampMs)
	if configKnown && changeKnown && !inConfig && !canChange {
		return ErrOutdatedMessage
	}
	return nil
}

func (r *Receiver) checkGroupOutdated(m *StandardMessage) error {
	groupID, err := ids.Parse(m.ThreadID)
	if err != nil {
		return ErrOutdatedMessage
	}

	if !r.state.HasCredentials(groupID) {
		return ErrOutdatedMessage
	}
	if r.state.GroupIsDestroyed(groupID) {
		return ErrOutdatedMessage
	}
	if r.state.WasKickedFromGroup(groupID) {
		return ErrOutdatedMessage
	}
	if before, ok := r.state.GroupDeleteBefore(groupID); ok && m.Message.SentTimestampMs < before {
		return ErrOutdatedMessage
	}
	if m.Message.hasAttachments() {
		if before, ok := r.state.GroupDeleteAttachmentsBefore(groupID); ok && m.Message.SentTimestampMs < before {
			return ErrOutdatedMessage
		}
	}
	return nil
}
