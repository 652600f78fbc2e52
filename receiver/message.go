package receiver

import (
	"github.com/sesh-im/go-sesh/ids"
	"github.com/sesh-im/go-sesh/wire"
)

type Kind uint8

const (
	KindReadReceipt Kind = iota
	KindTypingIndicator
	KindGroupInvite
	KindGroupInfoChange
	KindGroupMemberChange
	KindGroupPromote
	KindGroupMemberLeft
	KindGroupInviteResponse
	KindGroupDeleteMemberContent
	KindDataExtraction
	KindExpirationTimerUpdate
	KindUnsendRequest
	KindCallMessage
	KindMessageRequestResponse
	KindVisibleMessage
	KindLibSessionMessage
)

func (k Kind) String() string {
	switch k {
	case KindReadReceipt:
		return "readReceipt"
	case KindTypingIndicator:
		return "typingIndicator"
	case KindGroupInvite:
		return "groupInvite"
	case KindGroupInfoChange:
		return "groupInfoChange"
	case KindGroupMemberChange:
		return "groupMemberChange"
	case KindGroupPromote:
		return "groupPromote"
	case KindGroupMemberLeft:
		return "groupMemberLeft"
	case KindGroupInviteResponse:
		return "groupInviteResponse"
	case KindGroupDeleteMemberContent:
		return "groupDeleteMemberContent"
	case KindDataExtraction:
		return "dataExtraction"
	case KindExpirationTimerUpdate:
		return "expirationTimerUpdate"
	case KindUnsendRequest:
		return "unsendRequest"
	case KindCallMessage:
		return "callMessage"
	case KindMessageRequestResponse:
		return "messageRequestResponse"
	case KindVisibleMessage:
		return "visibleMessage"
	case KindLibSessionMessage:
		return "libSessionMessage"
	default:
		return "unknown"
	}
}

func (k Kind) isGroupUpdate() bool {
	return k >= KindGroupInvite && k <= KindGroupDeleteMemberContent
}

// processableWithBlockedSender allows messages that repair group state or
// carry deletions through even when the sender is blocked.
func (k Kind) processableWithBlockedSender() bool {
	switch k {
	case KindGroupDeleteMemberContent, KindLibSessionMessage:
		return true
	default:
		return false
	}
}

// allowsSelfSend marks kinds that arrive legitimately from the local user's
// other devices (sync messages).
func (k Kind) allowsSelfSend() bool {
	switch k {
	case KindVisibleMessage, KindExpirationTimerUpdate, KindUnsendRequest, KindCallMessage, KindLibSessionMessage:
		return true
	default:
		return false
	}
}

// DisappearingConfig is the sender's view of the thread's disappearing
// policy at send time.
type DisappearingConfig struct {
	Type        uint8
	DurationSec uint32
}

// Message is the decoded, variant-tagged envelope. It is built in a single
// step from origin metadata and never mutated after.
type Message struct {
	Sender              ids.ID
	ServerHash          string
	SentTimestampMs     uint64
	SigTimestampMs      uint64
	ReceivedTimestampMs uint64

	// open-group metadata
	ServerMessageID uint64
	Whisper         bool
	WhisperMods     bool
	WhisperTo       string

	Disappearing *DisappearingConfig

	Body Body
}

func (m *Message) Kind() Kind {
	return m.Body.Kind()
}

func (m *Message) hasAttachments() bool {
	vm, ok := m.Body.(*VisibleMessage)
	return ok && len(vm.Data.Attachments) > 0
}

// Body is the closed set of message variants.
type Body interface {
	Kind() Kind
	isValid() bool
}

type ReadReceipt struct {
	Data *wire.ReadReceipt
}

func (*ReadReceipt) Kind() Kind      { return KindReadReceipt }
func (b *ReadReceipt) isValid() bool { return len(b.Data.Timestamps) > 0 }

type TypingIndicator struct {
	Data *wire.TypingIndicator
}

func (*TypingIndicator) Kind() Kind      { return KindTypingIndicator }
func (b *TypingIndicator) isValid() bool { return b.Data.Action <= 1 }

type GroupInvite struct {
	Data *wire.GroupInvite
}

func (*GroupInvite) Kind() Kind { return KindGroupInvite }
func (b *GroupInvite) isValid() bool {
	if _, err := ids.Parse(b.Data.GroupID); err != nil {
		return false
	}
	return len(b.Data.MemberKey) > 0
}

type GroupInfoChange struct {
	Data *wire.GroupInfoChange
}

func (*GroupInfoChange) Kind() Kind      { return KindGroupInfoChange }
func (b *GroupInfoChange) isValid() bool { return b.Data.Kind >= 1 && b.Data.Kind <= 3 }

type GroupMemberChange struct {
	Data *wire.GroupMemberChange
}

func (*GroupMemberChange) Kind() Kind { return KindGroupMemberChange }
func (b *GroupMemberChange) isValid() bool {
	return b.Data.Kind >= 1 && b.Data.Kind <= 3 && len(b.Data.Members) > 0
}

type GroupPromote struct {
	Data *wire.GroupPromote
}

func (*GroupPromote) Kind() Kind      { return KindGroupPromote }
func (b *GroupPromote) isValid() bool { return len(b.Data.AdminKey) > 0 }

type GroupMemberLeft struct {
	Data *wire.GroupMemberLeft
}

func (*GroupMemberLeft) Kind() Kind    { return KindGroupMemberLeft }
func (*GroupMemberLeft) isValid() bool { return true }

type GroupInviteResponse struct {
	Data *wire.GroupInviteResponse
}

func (*GroupInviteResponse) Kind() Kind    { return KindGroupInviteResponse }
func (*GroupInviteResponse) isValid() bool { return true }

type GroupDeleteMemberContent struct {
	Data *wire.GroupDeleteMemberContent
}

func (*GroupDeleteMemberContent) Kind() Kind { return KindGroupDeleteMemberContent }
func (b *GroupDeleteMemberContent) isValid() bool {
	return len(b.Data.MemberIDs) > 0 || len(b.Data.Timestamps) > 0
}

type DataExtraction struct {
	Data *wire.DataExtraction
}

func (*DataExtraction) Kind() Kind      { return KindDataExtraction }
func (b *DataExtraction) isValid() bool { return b.Data.Kind == 1 || b.Data.Kind == 2 }

type ExpirationTimerUpdate struct {
	Data *wire.ExpirationUpdate
}

func (*ExpirationTimerUpdate) Kind() Kind    { return KindExpirationTimerUpdate }
func (*ExpirationTimerUpdate) isValid() bool { return true }

type UnsendRequest struct {
	Data *wire.Unsend
}

func (*UnsendRequest) Kind() Kind      { return KindUnsendRequest }
func (b *UnsendRequest) isValid() bool { return b.Data.Timestamp > 0 && b.Data.Author != "" }

type CallMessage struct {
	Data *wire.Call
}

func (*CallMessage) Kind() Kind      { return KindCallMessage }
func (b *CallMessage) isValid() bool { return b.Data.UUID != "" && b.Data.Kind >= 1 && b.Data.Kind <= 5 }

type MessageRequestResponse struct {
	Data *wire.MessageRequestResponse
}

func (*MessageRequestResponse) Kind() Kind    { return KindMessageRequestResponse }
func (*MessageRequestResponse) isValid() bool { return true }

type VisibleMessage struct {
	Data *wire.DataMessage
}

func (*VisibleMessage) Kind() Kind { return KindVisibleMessage }
func (b *VisibleMessage) isValid() bool {
	return b.Data.Text != "" || len(b.Data.Attachments) > 0 || b.Data.Reaction != nil
}

// LibSessionMessage holds origin-specific ciphertext whose decryption is
// deferred to its handler.
type LibSessionMessage struct {
	GroupID    ids.ID
	Ciphertext []byte
}

func (*LibSessionMessage) Kind() Kind      { return KindLibSessionMessage }
func (b *LibSessionMessage) isValid() bool { return len(b.Ciphertext) > 0 }

// bodyFromContent picks the single variant a decoded content matches.
func bodyFromContent(c *wire.Content) (Body, error) {
	bodies := make([]Body, 0, 1)
	if c.DataMessage != nil {
		bodies = append(bodies, &VisibleMessage{Data: c.DataMessage})
	}
	if c.ReadReceipt != nil {
		bodies = append(bodies, &ReadReceipt{Data: c.ReadReceipt})
	}
	if c.TypingIndicator != nil {
		bodies = append(bodies, &TypingIndicator{Data: c.TypingIndicator})
	}
	if c.GroupUpdate != nil {
		b, err := groupBodyFromUpdate(c.GroupUpdate)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, b)
	}
	if c.DataExtraction != nil {
		bodies = append(bodies, &DataExtraction{Data: c.DataExtraction})
	}
	if c.ExpirationUpdate != nil {
		bodies = append(bodies, &ExpirationTimerUpdate{Data: c.ExpirationUpdate})
	}
	if c.Unsend != nil {
		bodies = append(bodies, &UnsendRequest{Data: c.Unsend})
	}
	if c.Call != nil {
		bodies = append(bodies, &CallMessage{Data: c.Call})
	}
	if c.MessageRequestResponse != nil {
		bodies = append(bodies, &MessageRequestResponse{Data: c.MessageRequestResponse})
	}
	if len(bodies) != 1 {
		return nil, ErrUnknownMessage
	}
	return bodies[0], nil
}

func groupBodyFromUpdate(u *wire.GroupUpdate) (Body, error) {
	bodies := make([]Body, 0, 1)
	if u.Invite != nil {
		bodies = append(bodies, &GroupInvite{Data: u.Invite})
	}
	if u.InfoChange != nil {
		bodies = append(bodies, &GroupInfoChange{Data: u.InfoChange})
	}
	if u.MemberChange != nil {
		bodies = append(bodies, &GroupMemberChange{Data: u.MemberChange})
	}
	if u.Promote != nil {
		bodies = append(bodies, &GroupPromote{Data: u.Promote})
	}
	if u.MemberLeft != nil {
		bodies = append(bodies, &GroupMemberLeft{Data: u.MemberLeft})
	}
	if u.InviteResponse != nil {
		bodies = append(bodies, &GroupInviteResponse{Data: u.InviteResponse})
	}
	if u.DeleteMemberContent != nil {
		bodies = append(bodies, &GroupDeleteMemberContent{Data: u.DeleteMemberContent})
	}
	if len(bodies) != 1 {
		return nil, ErrUnknownMessage
	}
	return bodies[0], nil
}
