package receiver

import (
	"strings"
	"testing"

	"github.com/kevinburke/nacl"
	"github.com/stretchr/testify/require"

	"github.com/sesh-im/go-sesh/crypto"
	"github.com/sesh-im/go-sesh/ids"
	"github.com/sesh-im/go-sesh/wire"
)

func TestHandleVisibleMessage(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	payload := tr.sessionPayload(t, visibleContent("hello"), 1000)
	pm, info, err := tr.r.Process(payload, tr.swarmOrigin("hash1", 1000))
	require.NoError(t, err)
	sm := pm.(*StandardMessage)
	require.NotNil(t, info)
	require.NotZero(t, info.InteractionID)
	require.Equal(t, sm.ThreadID, info.ThreadID)
	require.False(t, info.WasRead)
	require.Equal(t, 0, info.NumPreviousInteractionsForMessageRequest)

	tr.run(t, func() {
		th, err := tr.r.store.thread(sm.ThreadID)
		require.NoError(t, err)
		require.True(t, th.Visible)
		count, err := tr.r.store.countInteractions(sm.ThreadID)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	// redelivery of the same message is a no-op
	_, info2, err := tr.r.Process(payload, tr.swarmOrigin("hash1", 1000))
	require.NoError(t, err)
	require.Nil(t, info2)
	tr.run(t, func() {
		count, err := tr.r.store.countInteractions(sm.ThreadID)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}

func TestHandleVisibleMessageCountsPrevious(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	_, _, err := tr.r.Process(tr.sessionPayload(t, visibleContent("one"), 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)
	_, info, err := tr.r.Process(tr.sessionPayload(t, visibleContent("two"), 2000), tr.swarmOrigin("h2", 2000))
	require.NoError(t, err)
	require.Equal(t, 1, info.NumPreviousInteractionsForMessageRequest)
}

func TestHandleExpiryJobScheduledOnce(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	_, _, err := tr.r.Process(tr.sessionPayload(t, visibleContent("one"), 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)
	_, _, err = tr.r.Process(tr.sessionPayload(t, visibleContent("two"), 2000), tr.swarmOrigin("h2", 2000))
	require.NoError(t, err)

	tr.run(t, func() {
		count, err := tr.r.store.jobCount(jobExpiryRecompute)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}

func TestHandleDisappearingExpiry(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	content := visibleContent("vanishing")
	content.ExpirationType = wire.ExpirationAfterSend
	content.ExpirationTimer = 60
	_, info, err := tr.r.Process(tr.sessionPayload(t, content, 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)

	tr.run(t, func() {
		var expiresAt uint64
		require.NoError(t, tr.db.Tx.Get(&expiresAt, "SELECT expires_at_ms FROM interactions WHERE id = ?", info.InteractionID))
		require.Equal(t, uint64(1000+60*1000), expiresAt)

		// the sender speaks the current disappearing protocol
		c, err := tr.r.store.contact(tr.senderID.String())
		require.NoError(t, err)
		require.Equal(t, uint8(2), c.DisappearingVersion)
	})
}

func TestHandleReadReceipt(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	_, info, err := tr.r.Process(tr.sessionPayload(t, visibleContent("read me"), 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)
	require.False(t, info.WasRead)

	_, rinfo, err := tr.r.Process(tr.sessionPayload(t, &wire.Content{
		ReadReceipt: &wire.ReadReceipt{Timestamps: []uint64{1000}},
	}, 2000), tr.swarmOrigin("h2", 2000))
	require.NoError(t, err)
	require.Nil(t, rinfo)

	tr.run(t, func() {
		read, err := tr.r.store.interactionRead(info.InteractionID)
		require.NoError(t, err)
		require.True(t, read)
	})
}

func TestHandleUnsendRequest(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	_, info, err := tr.r.Process(tr.sessionPayload(t, visibleContent("regret"), 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)

	_, _, err = tr.r.Process(tr.sessionPayload(t, &wire.Content{
		Unsend: &wire.Unsend{Timestamp: 1000, Author: tr.senderID.String()},
	}, 2000), tr.swarmOrigin("h2", 2000))
	require.NoError(t, err)

	tr.run(t, func() {
		var row struct {
			Deleted bool   `db:"deleted"`
			Body    string `db:"body"`
		}
		require.NoError(t, tr.db.Tx.Get(&row, "SELECT deleted, body FROM interactions WHERE id = ?", info.InteractionID))
		require.True(t, row.Deleted)
		require.Empty(t, row.Body)
	})
}

func TestHandleTypingIndicator(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	_, info, err := tr.r.Process(tr.sessionPayload(t, &wire.Content{
		TypingIndicator: &wire.TypingIndicator{Action: 0},
	}, 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)
	require.Nil(t, info)

	u := <-tr.r.Updates()
	tu, ok := u.(TypingUpdate)
	require.True(t, ok)
	require.Equal(t, tr.senderID.String(), tu.ThreadID)
	require.Equal(t, tr.senderID, tu.Sender)
	require.True(t, tu.Started)

	// typing never surfaces a hidden thread
	tr.run(t, func() {
		_, err := tr.r.store.thread(tr.senderID.String())
		require.Error(t, err)
	})
}

func TestHandleReaction(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	_, _, err := tr.r.Process(tr.sessionPayload(t, visibleContent("react to me"), 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)

	_, info, err := tr.r.Process(tr.sessionPayload(t, &wire.Content{
		DataMessage: &wire.DataMessage{
			Reaction: &wire.Reaction{Timestamp: 1000, Author: tr.senderID.String(), Emoji: "🎉"},
		},
	}, 2000), tr.swarmOrigin("h2", 2000))
	require.NoError(t, err)
	require.Nil(t, info)

	tr.run(t, func() {
		var count int
		require.NoError(t, tr.db.Tx.Get(&count, "SELECT count(*) FROM reactions WHERE thread_id = ? AND interaction_timestamp_ms = 1000", tr.senderID.String()))
		require.Equal(t, 1, count)
	})

	// a reaction to a message we never saw is dropped, not stored
	_, info, err = tr.r.Process(tr.sessionPayload(t, &wire.Content{
		DataMessage: &wire.DataMessage{
			Reaction: &wire.Reaction{Timestamp: 999, Author: tr.senderID.String(), Emoji: "🎉"},
		},
	}, 3000), tr.swarmOrigin("h3", 3000))
	require.NoError(t, err)
	require.Nil(t, info)

	// likewise once the target has been unsent
	tr.run(t, func() {
		_, err := tr.r.store.markInteractionDeletedByTimestamp(tr.senderID.String(), 1000)
		require.NoError(t, err)
	})
	_, info, err = tr.r.Process(tr.sessionPayload(t, &wire.Content{
		DataMessage: &wire.DataMessage{
			Reaction: &wire.Reaction{Timestamp: 1000, Author: tr.senderID.String(), Emoji: "🔥"},
		},
	}, 4000), tr.swarmOrigin("h4", 4000))
	require.NoError(t, err)
	require.Nil(t, info)

	tr.run(t, func() {
		var count int
		require.NoError(t, tr.db.Tx.Get(&count, "SELECT count(*) FROM reactions WHERE thread_id = ?", tr.senderID.String()))
		require.Equal(t, 1, count)
	})
}

func TestHandleInterceptor(t *testing.T) {
	var intercepted []*StandardMessage
	interceptor := func(m *StandardMessage) (bool, error) {
		vm, ok := m.Message.Body.(*VisibleMessage)
		if !ok || !strings.HasPrefix(vm.Data.Text, "!") {
			return false, nil
		}
		intercepted = append(intercepted, m)
		return true, nil
	}
	tr := newTestReceiver(t, WithInterceptor(interceptor))
	defer tr.teardown(t)

	_, info, err := tr.r.Process(tr.sessionPayload(t, visibleContent("!command"), 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)
	require.Nil(t, info)
	require.Len(t, intercepted, 1)

	// consumed messages leave no interaction and no thread
	tr.run(t, func() {
		count, err := tr.r.store.countInteractions(tr.senderID.String())
		require.NoError(t, err)
		require.Equal(t, 0, count)
	})

	_, info, err = tr.r.Process(tr.sessionPayload(t, visibleContent("plain"), 2000), tr.swarmOrigin("h2", 2000))
	require.NoError(t, err)
	require.NotNil(t, info)
}

func TestHandleExpirationTimerUpdate(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	content := &wire.Content{
		ExpirationType:   wire.ExpirationAfterSend,
		ExpirationTimer:  120,
		ExpirationUpdate: &wire.ExpirationUpdate{},
	}
	_, info, err := tr.r.Process(tr.sessionPayload(t, content, 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)
	require.NotNil(t, info)

	tr.run(t, func() {
		th, err := tr.r.store.thread(tr.senderID.String())
		require.NoError(t, err)
		require.Equal(t, wire.ExpirationAfterSend, th.DisappearingType)
		require.Equal(t, uint32(120), th.DisappearingDurationSec)
		require.True(t, th.Visible)
	})
}

func TestHandleMessageRequestResponse(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	_, info, err := tr.r.Process(tr.sessionPayload(t, &wire.Content{
		MessageRequestResponse: &wire.MessageRequestResponse{
			Approved: true,
			Profile:  &wire.Profile{Name: "mel"},
		},
	}, 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)
	require.NotNil(t, info)

	tr.run(t, func() {
		c, err := tr.r.store.contact(tr.senderID.String())
		require.NoError(t, err)
		require.True(t, c.Approved)
		require.Equal(t, "mel", c.Name)
	})
}

func TestHandleCallMessage(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	// signaling leaves no record
	_, info, err := tr.r.Process(tr.sessionPayload(t, &wire.Content{
		Call: &wire.Call{UUID: "u-1", Kind: 1},
	}, 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)
	require.Nil(t, info)

	// end-call does
	_, info, err = tr.r.Process(tr.sessionPayload(t, &wire.Content{
		Call: &wire.Call{UUID: "u-1", Kind: 4},
	}, 2000), tr.swarmOrigin("h2", 2000))
	require.NoError(t, err)
	require.NotNil(t, info)

	tr.run(t, func() {
		var kind uint8
		require.NoError(t, tr.db.Tx.Get(&kind, "SELECT kind FROM interactions WHERE id = ?", info.InteractionID))
		require.Equal(t, uint8(interactionCall), kind)
	})
}

func TestHandleGroupInvite(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	groupID := ids.NewID(ids.PrefixGroup)
	_, info, err := tr.r.Process(tr.sessionPayload(t, &wire.Content{
		GroupUpdate: &wire.GroupUpdate{
			Invite: &wire.GroupInvite{GroupID: groupID.String(), Name: "pals", MemberKey: []byte("member-key")},
		},
	}, 1000), tr.swarmOrigin("h1", 1000))
	require.NoError(t, err)
	require.NotNil(t, info)
	require.Equal(t, groupID.String(), info.ThreadID)

	tr.run(t, func() {
		g, err := tr.r.store.group(groupID.String())
		require.NoError(t, err)
		require.Equal(t, "pals", g.Name)
		require.Equal(t, []byte("member-key"), g.AuthData)

		// invites never surface the group until accepted
		th, err := tr.r.store.thread(groupID.String())
		require.NoError(t, err)
		require.False(t, th.Visible)
	})
}

func TestHandleGroupMemberChangeKicksLocal(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	groupID := ids.NewID(ids.PrefixGroup)
	key := nacl.NewKey()
	tr.provider.RegisterGroupKey(groupID, key)

	payload := tr.groupPayload(t, &wire.Content{
		GroupUpdate: &wire.GroupUpdate{
			MemberChange: &wire.GroupMemberChange{Kind: 2, Members: []string{tr.localID.String()}},
		},
	}, groupID, key, 1000)
	_, _, err := tr.r.Process(payload, SwarmOrigin{PublicKey: groupID, Namespace: NamespaceGroupMessages, ServerHash: "gh1"})
	require.NoError(t, err)

	tr.run(t, func() {
		g, err := tr.r.store.group(groupID.String())
		require.NoError(t, err)
		require.True(t, g.Kicked)
	})
}

func TestHandleGroupDeleteMemberContent(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	groupID := ids.NewID(ids.PrefixGroup)
	key := nacl.NewKey()
	tr.provider.RegisterGroupKey(groupID, key)
	groupOrigin := func(hash string) SwarmOrigin {
		return SwarmOrigin{PublicKey: groupID, Namespace: NamespaceGroupMessages, ServerHash: hash}
	}

	_, info, err := tr.r.Process(tr.groupPayload(t, visibleContent("to be scrubbed"), groupID, key, 1000), groupOrigin("gh1"))
	require.NoError(t, err)

	_, _, err = tr.r.Process(tr.groupPayload(t, &wire.Content{
		GroupUpdate: &wire.GroupUpdate{
			DeleteMemberContent: &wire.GroupDeleteMemberContent{Timestamps: []uint64{1000}},
		},
	}, groupID, key, 2000), groupOrigin("gh2"))
	require.NoError(t, err)

	tr.run(t, func() {
		var deleted bool
		require.NoError(t, tr.db.Tx.Get(&deleted, "SELECT deleted FROM interactions WHERE id = ?", info.InteractionID))
		require.True(t, deleted)
	})
}

func TestHandleRevocation(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	groupID := ids.NewID(ids.PrefixGroup)
	key := nacl.NewKey()
	tr.provider.RegisterGroupKey(groupID, key)

	ct, err := crypto.EncryptGroupMessage(groupID, key, []byte("tombstone"), tr.senderID)
	require.NoError(t, err)
	_, info, err := tr.r.Process(ct, SwarmOrigin{
		PublicKey:  groupID,
		Namespace:  NamespaceRevokedRetrievableGroupMessages,
		ServerHash: "rh1",
	})
	require.NoError(t, err)
	require.Nil(t, info)

	tr.run(t, func() {
		g, err := tr.r.store.group(groupID.String())
		require.NoError(t, err)
		require.True(t, g.Kicked)
	})
}

func TestHandleRevocationForSomeoneElse(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	groupID := ids.NewID(ids.PrefixGroup)
	tr.provider.RegisterGroupKey(groupID, nacl.NewKey())

	// sealed under a key we don't hold: not our revocation
	otherKey := nacl.NewKey()
	ct, err := crypto.EncryptGroupMessage(groupID, otherKey, []byte("tombstone"), tr.senderID)
	require.NoError(t, err)
	_, _, err = tr.r.Process(ct, SwarmOrigin{
		PublicKey:  groupID,
		Namespace:  NamespaceRevokedRetrievableGroupMessages,
		ServerHash: "rh1",
	})
	require.NoError(t, err)

	tr.run(t, func() {
		_, err := tr.r.store.group(groupID.String())
		require.Error(t, err)
	})
}

func TestHandleCommunityMessage(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)

	origin := CommunityOrigin{
		OpenGroupID:     "example.org/sudoku",
		Sender:          tr.senderID,
		TimestampMs:     1000,
		ServerMessageID: 5,
	}
	_, info, err := tr.r.Process(encodePadded(t, visibleContent("open post")), origin)
	require.NoError(t, err)
	require.NotNil(t, info)

	tr.run(t, func() {
		th, err := tr.r.store.thread("example.org/sudoku")
		require.NoError(t, err)
		require.Equal(t, uint8(ThreadCommunity), th.Variant)
		require.True(t, th.Visible)

		// community threads never get expiry jobs
		count, err := tr.r.store.jobCount(jobExpiryRecompute)
		require.NoError(t, err)
		require.Equal(t, 0, count)
	})
}
