package wire

import (
	"fmt"

	"github.com/sesh-im/go-sesh/bencode"
)

// Disappearing-message modes carried on content.
const (
	ExpirationNone      uint8 = 0
	ExpirationAfterRead uint8 = 1
	ExpirationAfterSend uint8 = 2
)

// Content is the decrypted message body. Exactly one of the sub-message
// pointers is expected to be set.
type Content struct {
	SigTimestamp    uint64 `bencode:"g"`
	ExpirationType  uint8  `bencode:"e"`
	ExpirationTimer uint32 `bencode:"d"`

	DataMessage            *DataMessage            `bencode:"m"`
	ReadReceipt            *ReadReceipt            `bencode:"r"`
	TypingIndicator        *TypingIndicator        `bencode:"y"`
	GroupUpdate            *GroupUpdate            `bencode:"u"`
	DataExtraction         *DataExtraction         `bencode:"x"`
	ExpirationUpdate       *ExpirationUpdate       `bencode:"p"`
	Unsend                 *Unsend                 `bencode:"n"`
	Call                   *Call                   `bencode:"l"`
	MessageRequestResponse *MessageRequestResponse `bencode:"q"`
}

// HasExpirationFields reports whether the sender speaks the current
// disappearing-messages protocol.
func (c *Content) HasExpirationFields() bool {
	return c.ExpirationType != ExpirationNone || c.ExpirationTimer != 0
}

type Profile struct {
	Name       string `bencode:"n"`
	AvatarURL  string `bencode:"a"`
	ProfileKey []byte `bencode:"k"`
}

type Attachment struct {
	ID          uint64 `bencode:"i"`
	Key         []byte `bencode:"k"`
	Digest      []byte `bencode:"d"`
	Filename    string `bencode:"f"`
	ContentType string `bencode:"c"`
}

type Quote struct {
	Timestamp uint64 `bencode:"t"`
	Author    string `bencode:"a"`
}

type Reaction struct {
	Timestamp uint64 `bencode:"t"`
	Author    string `bencode:"a"`
	Emoji     string `bencode:"e"`
	// 0 react, 1 remove
	Action uint8 `bencode:"c"`
}

type DataMessage struct {
	Text        string       `bencode:"b"`
	Attachments []Attachment `bencode:"a"`
	Quote       *Quote       `bencode:"q"`
	Reaction    *Reaction    `bencode:"r"`
	Profile     *Profile     `bencode:"p"`
	// set on messages synced from another device of the local user
	SyncTarget string `bencode:"s"`
}

type ReadReceipt struct {
	Timestamps []uint64 `bencode:"t"`
}

type TypingIndicator struct {
	// 0 started, 1 stopped
	Action uint8 `bencode:"a"`
}

// GroupUpdate carries exactly one of its sub-kinds.
type GroupUpdate struct {
	Invite              *GroupInvite              `bencode:"i"`
	InfoChange          *GroupInfoChange          `bencode:"c"`
	MemberChange        *GroupMemberChange        `bencode:"m"`
	Promote             *GroupPromote             `bencode:"p"`
	MemberLeft          *GroupMemberLeft          `bencode:"l"`
	InviteResponse      *GroupInviteResponse      `bencode:"r"`
	DeleteMemberContent *GroupDeleteMemberContent `bencode:"d"`
}

type GroupInvite struct {
	GroupID   string `bencode:"g"`
	Name      string `bencode:"n"`
	MemberKey []byte `bencode:"k"`
	AdminSig  []byte `bencode:"s"`
}

type GroupInfoChange struct {
	// 1 name, 2 avatar, 3 disappearing setting
	Kind            uint8  `bencode:"k"`
	Name            string `bencode:"n"`
	ExpirationTimer uint32 `bencode:"d"`
}

type GroupMemberChange struct {
	// 1 added, 2 removed, 3 promoted
	Kind    uint8    `bencode:"k"`
	Members []string `bencode:"m"`
}

type GroupPromote struct {
	AdminKey []byte `bencode:"k"`
}

type GroupMemberLeft struct {
	// notification-only variants are rendered but carry no state change
	NotificationOnly bool `bencode:"n"`
}

type GroupInviteResponse struct {
	Approved bool `bencode:"a"`
}

type GroupDeleteMemberContent struct {
	MemberIDs  []string `bencode:"m"`
	Timestamps []uint64 `bencode:"t"`
	AdminSig   []byte   `bencode:"s"`
}

type DataExtraction struct {
	// 1 screenshot, 2 media saved
	Kind      uint8  `bencode:"k"`
	Timestamp uint64 `bencode:"t"`
}

type ExpirationUpdate struct{}

type Unsend struct {
	Timestamp uint64 `bencode:"t"`
	Author    string `bencode:"a"`
}

type Call struct {
	UUID string `bencode:"u"`
	// 1 offer, 2 answer, 3 ice candidates, 4 end call, 5 pre-offer
	Kind uint8 `bencode:"k"`
}

type MessageRequestResponse struct {
	Approved bool     `bencode:"a"`
	Profile  *Profile `bencode:"p"`
}

func DecodeContent(plaintext []byte) (*Content, error) {
	c := &Content{}
	if err := bencode.Deserialize(plaintext, c); err != nil {
		return nil, fmt.Errorf("wire: decoding content: %w", err)
	}
	return c, nil
}

func EncodeContent(c *Content) ([]byte, error) {
	return bencode.Serialize(c)
}
