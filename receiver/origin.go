package receiver

import "github.com/sesh-im/go-sesh/ids"

// Namespace partitions a swarm account's stored messages.
type Namespace int

const (
	NamespaceDefault       Namespace = 0
	NamespaceGroupMessages Namespace = 11

	NamespaceConfigUserProfile       Namespace = 2
	NamespaceConfigContacts          Namespace = 3
	NamespaceConfigConvoInfoVolatile Namespace = 4
	NamespaceConfigUserGroups        Namespace = 5
	NamespaceConfigGroupInfo         Namespace = 12
	NamespaceConfigGroupKeys         Namespace = 13
	NamespaceConfigGroupMembers      Namespace = 14

	NamespaceLegacyClosedGroup               Namespace = -10
	NamespaceRevokedRetrievableGroupMessages Namespace = -11

	// client-side markers, never valid on the wire
	NamespaceLocalConfig Namespace = -1
	NamespaceAll         Namespace = -2
	NamespaceUnknown     Namespace = -3
)

// IsConfig reports whether messages in this namespace are opaque config
// blobs merged by the config subsystem, never decoded here.
func (n Namespace) IsConfig() bool {
	switch n {
	case NamespaceConfigUserProfile, NamespaceConfigContacts, NamespaceConfigConvoInfoVolatile,
		NamespaceConfigUserGroups, NamespaceConfigGroupInfo, NamespaceConfigGroupKeys,
		NamespaceConfigGroupMembers:
		return true
	default:
		return false
	}
}

type ThreadVariant uint8

const (
	ThreadContact ThreadVariant = iota
	ThreadLegacyGroup
	ThreadGroup
	ThreadCommunity
)

func (v ThreadVariant) String() string {
	switch v {
	case ThreadContact:
		return "contact"
	case ThreadLegacyGroup:
		return "legacyGroup"
	case ThreadGroup:
		return "group"
	case ThreadCommunity:
		return "community"
	default:
		return "unknown"
	}
}

// Origin tags an inbound ciphertext with its delivery channel. Exactly one
// concrete origin is given per Parse call; it selects both the unseal
// procedure and the thread-id rule.
type Origin interface {
	originLabel() string
}

// SwarmOrigin is a message fetched from an account's swarm storage.
type SwarmOrigin struct {
	PublicKey         ids.ID
	Namespace         Namespace
	ServerHash        string
	ServerTimestampMs uint64
}

func (SwarmOrigin) originLabel() string { return "swarm" }

// CommunityOrigin is a message relayed by an open community server.
type CommunityOrigin struct {
	OpenGroupID     string
	Sender          ids.ID
	TimestampMs     uint64
	ServerMessageID uint64
	Whisper         bool
	WhisperMods     bool
	WhisperTo       string
}

func (CommunityOrigin) originLabel() string { return "community" }

// InboxOrigin is a blinded DM delivered through a community server's inbox.
type InboxOrigin struct {
	TimestampMs     uint64
	ServerMessageID uint64
	ServerPublicKey []byte
	SenderID        ids.ID
	RecipientID     ids.ID
}

func (InboxOrigin) originLabel() string { return "inbox" }
