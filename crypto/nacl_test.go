package crypto

import (
	"testing"

	"github.com/kevinburke/nacl"
	"github.com/kevinburke/nacl/scalarmult"
	"github.com/sesh-im/go-sesh/ids"
	"github.com/stretchr/testify/require"
)

func TestSessionProtocolRoundtrip(t *testing.T) {
	require := require.New(t)

	recipientPriv := nacl.NewKey()
	recipient := NewNaclProvider(recipientPriv)
	senderPriv := nacl.NewKey()
	senderPub := scalarmult.Base(senderPriv)

	ct, err := EncryptSessionProtocol([]byte("hello there"), senderPub, recipient.PublicKey())
	require.NoError(err)

	plain, sender, err := recipient.DecryptSessionProtocol(ct)
	require.NoError(err)
	require.Equal([]byte("hello there"), plain)
	require.Equal(ids.PrefixStandard, sender.Prefix())
	require.Equal(senderPub[:], sender.PublicKey())
}

func TestSessionProtocolRejectsGarbage(t *testing.T) {
	require := require.New(t)

	p := NewNaclProvider(nacl.NewKey())
	_, _, err := p.DecryptSessionProtocol([]byte("short"))
	require.ErrorIs(err, ErrDecryptFailed)

	long := make([]byte, 200)
	_, _, err = p.DecryptSessionProtocol(long)
	require.ErrorIs(err, ErrDecryptFailed)
}

func TestGroupMessageRoundtrip(t *testing.T) {
	require := require.New(t)

	groupID := ids.NewID(ids.PrefixGroup)
	sender := ids.NewID(ids.PrefixStandard)
	key := nacl.NewKey()

	p := NewNaclProvider(nacl.NewKey())
	p.RegisterGroupKey(groupID, key)

	ct, err := EncryptGroupMessage(groupID, key, []byte("envelope bytes"), sender)
	require.NoError(err)

	plain, gotSender, err := p.DecryptGroupMessage(groupID, ct)
	require.NoError(err)
	require.Equal([]byte("envelope bytes"), plain)
	require.Equal(sender, gotSender)
}

func TestGroupMessageUnknownGroup(t *testing.T) {
	require := require.New(t)

	p := NewNaclProvider(nacl.NewKey())
	_, _, err := p.DecryptGroupMessage(ids.NewID(ids.PrefixGroup), []byte("whatever"))
	require.ErrorIs(err, ErrDecryptFailed)
}

func TestGroupMessageWrongGroupAD(t *testing.T) {
	require := require.New(t)

	groupA := ids.NewID(ids.PrefixGroup)
	groupB := ids.NewID(ids.PrefixGroup)
	key := nacl.NewKey()

	p := NewNaclProvider(nacl.NewKey())
	p.RegisterGroupKey(groupA, key)
	p.RegisterGroupKey(groupB, key)

	ct, err := EncryptGroupMessage(groupA, key, []byte("x"), ids.NewID(ids.PrefixStandard))
	require.NoError(err)
	_, _, err = p.DecryptGroupMessage(groupB, ct)
	require.ErrorIs(err, ErrDecryptFailed)
}

func TestBlindedInboxRoundtrip(t *testing.T) {
	require := require.New(t)

	serverPriv := nacl.NewKey()
	serverPub := scalarmult.Base(serverPriv)

	recipientPriv := nacl.NewKey()
	recipient := NewNaclProvider(recipientPriv)
	recipientID := recipient.AccountID()

	realSenderPriv := nacl.NewKey()
	realSenderPub := scalarmult.Base(realSenderPriv)
	blindedSender := ids.NewID(ids.PrefixBlinded)

	ct, err := EncryptBlindedInbox([]byte("psst"), realSenderPub, blindedSender, recipientID, serverPriv)
	require.NoError(err)

	plain, sender, err := recipient.DecryptBlindedInbox(ct, blindedSender, recipientID, serverPub[:])
	require.NoError(err)
	require.Equal([]byte("psst"), plain)
	require.Equal(realSenderPub[:], sender.PublicKey())
}

func TestAttachmentRoundtrip(t *testing.T) {
	require := require.New(t)

	key := nacl.NewKey()
	p := NewNaclProvider(nacl.NewKey())

	ct, err := EncryptAttachment(key[:], []byte("image bytes"))
	require.NoError(err)
	plain, err := p.DecryptAttachment(key[:], ct)
	require.NoError(err)
	require.Equal([]byte("image bytes"), plain)

	ct[len(ct)-1] ^= 0xff
	_, err = p.DecryptAttachment(key[:], ct)
	require.ErrorIs(err, ErrDecryptFailed)
}
