package moments

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/sesh-im/go-sesh/config"
	db "github.com/sesh-im/go-sesh/internal/db"
	"github.com/sesh-im/go-sesh/ids"
	"github.com/sesh-im/go-sesh/migration"
	"github.com/sesh-im/go-sesh/receiver"
)

type SavedPost struct {
	Author       string `db:"author"`
	TimestampMs  uint64 `db:"timestamp_ms"`
	ReceivedAtMs uint64 `db:"received_at_ms"`
	Caption      string `db:"caption"`
	ImageURL     string `db:"image_url"`
	ImageKey     []byte `db:"image_key"`
}

type Store struct {
	log *zap.SugaredLogger
	db  *db.Database
}

func NewStore(c *config.Config, d *db.Database) (*Store, error) {
	s := &Store{log: c.Logger("moments"), db: d}
	if err := d.Migrate("moments", []*migration.Migration{
		{
			Name: "create-posts",
			Func: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
CREATE TABLE moment_posts (
	author TEXT NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	received_at_ms INTEGER NOT NULL DEFAULT 0,
	caption TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	image_key BLOB,
	PRIMARY KEY (author, timestamp_ms)
);
CREATE INDEX moment_posts_received ON moment_posts (received_at_ms);
`)
				return err
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("moments: error migrating store %w", err)
	}
	return s, nil
}

// SavePost persists a post, deduplicating by (author, timestamp). It reports
// whether a new row was written.
func (s *Store) SavePost(author ids.ID, p *Post, receivedAtMs uint64) (bool, error) {
	res, err := s.db.Tx.Exec(`
INSERT INTO moment_posts (author, timestamp_ms, received_at_ms, caption, image_url, image_key)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (author, timestamp_ms) DO NOTHING
`, author.String(), p.Timestamp, receivedAtMs, p.Caption, p.ImageURL, p.ImageKey)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) RecentPosts(limit int) ([]*SavedPost, error) {
	posts := make([]*SavedPost, 0)
	if err := s.db.Tx.Select(&posts, `
SELECT * FROM moment_posts ORDER BY received_at_ms DESC, timestamp_ms DESC LIMIT ?
`, limit); err != nil {
		return nil, err
	}
	return posts, nil
}

// Interceptor consumes moment posts out of the receive pipeline. Malformed
// posts are logged and dropped rather than surfaced as interactions.
func (s *Store) Interceptor() receiver.Interceptor {
	return func(m *receiver.StandardMessage) (bool, error) {
		vm, ok := m.Message.Body.(*receiver.VisibleMessage)
		if !ok || !IsMoment(vm.Data.Text) {
			return false, nil
		}
		post, err := Parse(vm.Data.Text)
		if err != nil {
			s.log.Warnf("dropping malformed moment from %s: %s", m.Message.Sender, err)
			return true, nil
		}
		if post.Timestamp == 0 {
			post.Timestamp = m.Message.SentTimestampMs
		}
		saved, err := s.SavePost(m.Message.Sender, post, m.Message.ReceivedTimestampMs)
		if err != nil {
			return true, err
		}
		if !saved {
			s.log.Debugf("moment from %s at %d already present", m.Message.Sender, post.Timestamp)
		}
		return true, nil
	}
}
