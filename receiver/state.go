package receiver

import (
	"github.com/sesh-im/go-sesh/ids"
)

// StateReader is the pipeline's read-only view of synced contact/group/config
// state. The two config queries return (value, known); unknown state is
// treated permissively by the outdated guard.
type StateReader interface {
	IsContactBlocked(id ids.ID) bool
	HasCredentials(groupID ids.ID) bool
	GroupIsDestroyed(groupID ids.ID) bool
	WasKickedFromGroup(groupID ids.ID) bool
	GroupDeleteBefore(groupID ids.ID) (uint64, bool)
	GroupDeleteAttachmentsBefore(groupID ids.ID) (uint64, bool)
	ConversationInConfig(threadID string, variant ThreadVariant, visibleOnly bool) (bool, bool)
	CanPerformChange(threadID string, variant ThreadVariant, atMs uint64) (bool, bool)
}

// storeState reads the pipeline's own tables. It serves as the default
// StateReader when the embedding application doesn't supply one.
type storeState struct {
	store *store
}

func newStoreState(s *store) *storeState {
	return &storeState{store: s}
}

func (ss *storeState) IsContactBlocked(id ids.ID) bool {
	c, err := ss.store.contact(id.String())
	if err != nil {
		return false
	}
	return c.Blocked
}

func (ss *storeState) HasCredentials(groupID ids.ID) bool {
	g, err := ss.store.group(groupID.String())
	if err != nil {
		return false
	}
	return len(g.AuthData) > 0
}

func (ss *storeState) GroupIsDestroyed(groupID ids.ID) bool {
	g, err := ss.store.group(groupID.String())
	if err != nil {
		return false
	}
	return g.Destroyed
}

func (ss *storeState) WasKickedFromGroup(groupID ids.ID) bool {
	g, err := ss.store.group(groupID.String())
	if err != nil {
		return false
	}
	return g.Kicked
}

func (ss *storeState) GroupDeleteBefore(groupID ids.ID) (uint64, bool) {
	g, err := ss.store.group(groupID.String())
	if err != nil || g.DeleteBeforeMs == nil {
		return 0, false
	}
	return *g.DeleteBeforeMs, true
}

func (ss *storeState) GroupDeleteAttachmentsBefore(groupID ids.ID) (uint64, bool) {
	g, err := ss.store.group(groupID.String())
	if err != nil || g.DeleteAttachmentsBeforeMs == nil {
		return 0, false
	}
	return *g.DeleteAttachmentsBeforeMs, true
}

func (ss *storeState) ConversationInConfig(threadID string, variant ThreadVariant, visibleOnly bool) (bool, bool) {
	t, err := ss.store.thread(threadID)
	if err != nil {
		// a thread we've never written is unknown, not absent
		return false, false
	}
	if !visibleOnly {
		return true, true
	}
	return t.Visible, true
}

func (ss *storeState) CanPerformChange(threadID string, variant ThreadVariant, atMs uint64) (bool, bool) {
	t, err := ss.store.thread(threadID)
	if err != nil {
		return false, false
	}
	// changes older than the thread's last config write lost the merge
	return atMs >= t.ConfigTimestampMs, true
}
