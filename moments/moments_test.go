package moments

import (
	"os"
	"testing"

	"github.com/kevinburke/nacl"
	"github.com/kevinburke/nacl/scalarmult"
	"github.com/stretchr/testify/require"

	"github.com/sesh-im/go-sesh/clock"
	"github.com/sesh-im/go-sesh/config"
	"github.com/sesh-im/go-sesh/crypto"
	"github.com/sesh-im/go-sesh/internal/test"
	"github.com/sesh-im/go-sesh/ids"
	"github.com/sesh-im/go-sesh/receiver"
	"github.com/sesh-im/go-sesh/wire"
)

func TestMain(m *testing.M) {
	os.Exit(test.DBCleanup(m.Run))
}

func TestEncodeParseRoundtrip(t *testing.T) {
	post := &Post{Caption: "sunset", ImageURL: "https://files.example.org/a", ImageKey: []byte("key"), Timestamp: 12345}
	text, err := Encode(post)
	require.NoError(t, err)
	require.True(t, IsMoment(text))

	decoded, err := Parse(text)
	require.NoError(t, err)
	require.Equal(t, post, decoded)

	_, err = Parse("just a message")
	require.Error(t, err)
	_, err = Parse(Prefix + "not bencode")
	require.Error(t, err)
}

func TestInterception(t *testing.T) {
	c := config.NewConfig(config.WithLoggingPrefix("test"))
	d := test.NewTestDatabase(c)
	defer func() {
		require.NoError(t, d.Shutdown())
	}()

	provider := crypto.NewNaclProvider(nacl.NewKey())
	store, err := NewStore(c, d)
	require.NoError(t, err)
	rec, err := receiver.New(c, d, provider, clock.NewSystemClock(), provider.AccountID(),
		receiver.WithInterceptor(store.Interceptor()))
	require.NoError(t, err)

	senderPriv := nacl.NewKey()
	senderPub := scalarmult.Base(senderPriv)
	senderID, err := ids.FromPublicKey(ids.PrefixStandard, senderPub[:])
	require.NoError(t, err)

	text, err := Encode(&Post{Caption: "first snow", Timestamp: 9000})
	require.NoError(t, err)
	payload := sessionPayload(t, &wire.DataMessage{
		Text:    text,
		Profile: &wire.Profile{Name: "casey"},
	}, senderPub, provider.PublicKey(), 9000)

	origin := receiver.SwarmOrigin{
		PublicKey:  provider.AccountID(),
		Namespace:  receiver.NamespaceDefault,
		ServerHash: "mh1",
	}
	_, info, err := rec.Process(payload, origin)
	require.NoError(t, err)
	require.Nil(t, info)

	require.NoError(t, d.Run("verify", func() error {
		posts, err := store.RecentPosts(10)
		require.NoError(t, err)
		require.Len(t, posts, 1)
		require.Equal(t, senderID.String(), posts[0].Author)
		require.Equal(t, "first snow", posts[0].Caption)
		require.Equal(t, uint64(9000), posts[0].TimestampMs)

		// the post never became an interaction
		var count int
		require.NoError(t, d.Tx.Get(&count, "SELECT count(*) FROM interactions"))
		require.Equal(t, 0, count)

		// but the attached profile still landed
		var name string
		require.NoError(t, d.Tx.Get(&name, "SELECT name FROM contacts WHERE id = ?", senderID.String()))
		require.Equal(t, "casey", name)
		return nil
	}))

	// redelivery under a new hash dedupes by (author, timestamp)
	origin.ServerHash = "mh2"
	_, info, err = rec.Process(sessionPayload(t, &wire.DataMessage{Text: text}, senderPub, provider.PublicKey(), 9000), origin)
	require.NoError(t, err)
	require.Nil(t, info)
	require.NoError(t, d.Run("verify", func() error {
		posts, err := store.RecentPosts(10)
		require.NoError(t, err)
		require.Len(t, posts, 1)
		return nil
	}))

	// ordinary messages still flow through
	_, info, err = rec.Process(sessionPayload(t, &wire.DataMessage{Text: "plain message"}, senderPub, provider.PublicKey(), 9500), origin)
	require.NoError(t, err)
	require.NotNil(t, info)
}

func TestDecryptImage(t *testing.T) {
	provider := crypto.NewNaclProvider(nacl.NewKey())
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	ct, err := crypto.EncryptAttachment(key, []byte("jpeg bytes"))
	require.NoError(t, err)

	out, err := DecryptImage(provider, &Post{ImageKey: key}, ct)
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg bytes"), out)

	_, err = DecryptImage(provider, &Post{}, ct)
	require.Error(t, err)
}

func sessionPayload(t *testing.T, dm *wire.DataMessage, senderPub, recipientPub nacl.Key, timestampMs uint64) []byte {
	b, err := wire.EncodeContent(&wire.Content{DataMessage: dm})
	require.NoError(t, err)
	ct, err := crypto.EncryptSessionProtocol(wire.AddPadding(b, 160), senderPub, recipientPub)
	require.NoError(t, err)
	wrapped, err := wire.WrapEnvelope(&wire.Envelope{
		Type:      wire.EnvelopeSessionMessage,
		Timestamp: timestampMs,
		Content:   ct,
	})
	require.NoError(t, err)
	return wrapped
}
