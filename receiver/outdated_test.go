package receiver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sesh-im/go-sesh/ids"
	"github.com/sesh-im/go-sesh/wire"
)

func groupMessage(groupID ids.ID, sender ids.ID, body Body, sentMs uint64) *StandardMessage {
	return &StandardMessage{
		ThreadID:      groupID.String(),
		ThreadVariant: ThreadGroup,
		Message: &Message{
			Sender:          sender,
			SentTimestampMs: sentMs,
			Body:            body,
		},
		uniqueID: "hash",
	}
}

func contactMessage(sender ids.ID, body Body, sentMs uint64) *StandardMessage {
	return &StandardMessage{
		ThreadID:      sender.String(),
		ThreadVariant: ThreadContact,
		Message: &Message{
			Sender:          sender,
			SentTimestampMs: sentMs,
			Body:            body,
		},
		uniqueID: "hash",
	}
}

func visibleBody(text string) Body {
	return &VisibleMessage{Data: &wire.DataMessage{Text: text}}
}

func TestOutdatedGroupStanding(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)
	groupID := ids.NewID(ids.PrefixGroup)
	m := groupMessage(groupID, tr.senderID, visibleBody("hi"), 1000)

	require.NoError(t, tr.r.CheckOutdated(m))

	tr.state.noCredentials[groupID] = true
	require.ErrorIs(t, tr.r.CheckOutdated(m), ErrOutdatedMessage)
	delete(tr.state.noCredentials, groupID)

	tr.state.destroyed[groupID] = true
	require.ErrorIs(t, tr.r.CheckOutdated(m), ErrOutdatedMessage)
	delete(tr.state.destroyed, groupID)

	tr.state.kicked[groupID] = true
	require.ErrorIs(t, tr.r.CheckOutdated(m), ErrOutdatedMessage)
}

func TestOutdatedAlwaysAcceptedKinds(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)
	groupID := ids.NewID(ids.PrefixGroup)
	tr.state.kicked[groupID] = true

	rr := groupMessage(groupID, tr.senderID, &ReadReceipt{Data: &wire.ReadReceipt{Timestamps: []uint64{1}}}, 1000)
	require.NoError(t, tr.r.CheckOutdated(rr))

	un := groupMessage(groupID, tr.senderID, &UnsendRequest{Data: &wire.Unsend{Timestamp: 1, Author: "a"}}, 1000)
	require.NoError(t, tr.r.CheckOutdated(un))
}

func TestOutdatedGroupRepairKinds(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)
	groupID := ids.NewID(ids.PrefixGroup)
	tr.state.kicked[groupID] = true

	// the group is also gone from our synced config, which drops any
	// ordinary message outright
	no := false
	tr.state.inConfig = &no
	tr.state.canChange = &no
	require.ErrorIs(t, tr.r.CheckOutdated(groupMessage(groupID, tr.senderID, visibleBody("hi"), 1000)), ErrOutdatedMessage)

	for _, body := range []Body{
		&GroupInviteResponse{Data: &wire.GroupInviteResponse{Approved: true}},
		&GroupDeleteMemberContent{Data: &wire.GroupDeleteMemberContent{Timestamps: []uint64{1}}},
		&GroupMemberLeft{Data: &wire.GroupMemberLeft{}},
	} {
		m := groupMessage(groupID, tr.senderID, body, 1000)
		require.NoError(t, tr.r.CheckOutdated(m), "kind %s", body.Kind())
	}
}

func TestOutdatedDeleteBeforeWatermark(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)
	groupID := ids.NewID(ids.PrefixGroup)
	tr.state.deleteBefore[groupID] = 5000

	require.ErrorIs(t, tr.r.CheckOutdated(groupMessage(groupID, tr.senderID, visibleBody("old"), 4999)), ErrOutdatedMessage)
	require.NoError(t, tr.r.CheckOutdated(groupMessage(groupID, tr.senderID, visibleBody("new"), 5000)))
	require.NoError(t, tr.r.CheckOutdated(groupMessage(groupID, tr.senderID, visibleBody("newer"), 6000)))
}

func TestOutdatedAttachmentWatermark(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)
	groupID := ids.NewID(ids.PrefixGroup)
	tr.state.deleteAttachmentsBefore[groupID] = 5000

	withAttachment := &VisibleMessage{Data: &wire.DataMessage{
		Attachments: []wire.Attachment{{ID: 1, Filename: "cat.jpg"}},
	}}
	require.ErrorIs(t, tr.r.CheckOutdated(groupMessage(groupID, tr.senderID, withAttachment, 4000)), ErrOutdatedMessage)

	// same vintage, no attachments: passes
	require.NoError(t, tr.r.CheckOutdated(groupMessage(groupID, tr.senderID, visibleBody("text only"), 4000)))
}

func TestOutdatedConfigGate(t *testing.T) {
	tr := newTestReceiver(t)
	defer tr.teardown(t)
	m := contactMessage(tr.senderID, visibleBody("hi"), 1000)

	// unknown state never rejects
	require.NoError(t, tr.r.CheckOutdated(m))

	no := false
	yes := true

	tr.state.inConfig = &no
	tr.state.canChange = &no
	require.ErrorIs(t, tr.r.CheckOutdated(m), ErrOutdatedMessage)

	// either answer flipping to yes lets it through
	tr.state.canChange = &yes
	require.NoError(t, tr.r.CheckOutdated(m))
	tr.state.inConfig = &yes
	tr.state.canChange = &no
	require.NoError(t, tr.r.CheckOutdated(m))

	// one known, one unknown: still passes
	tr.state.inConfig = &no
	tr.state.canChange = nil
	require.NoError(t, tr.r.CheckOutdated(m))
}
