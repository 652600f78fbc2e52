package receiver

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	db "github.com/sesh-im/go-sesh/internal/db"
	"github.com/sesh-im/go-sesh/migration"
	"github.com/sesh-im/go-sesh/wire"
)

const (
	interactionVisible = 0
	interactionInfo    = 1
	interactionCall    = 2
)

type contact struct {
	ID                  string `db:"id"`
	Name                string `db:"name"`
	AvatarURL           string `db:"avatar_url"`
	ProfileKey          []byte `db:"profile_key"`
	Blocked             bool   `db:"blocked"`
	Approved            bool   `db:"approved"`
	DisappearingVersion uint8  `db:"disappearing_version"`
}

type thread struct {
	ID                      string `db:"id"`
	Variant                 uint8  `db:"variant"`
	Visible                 bool   `db:"visible"`
	DisappearingType        uint8  `db:"disappearing_type"`
	DisappearingDurationSec uint32 `db:"disappearing_duration_sec"`
	ConfigTimestampMs       uint64 `db:"config_timestamp_ms"`
}

type group struct {
	ID                        string  `db:"id"`
	Name                      string  `db:"name"`
	AuthData                  []byte  `db:"auth_data"`
	Destroyed                 bool    `db:"destroyed"`
	Kicked                    bool    `db:"kicked"`
	DeleteBeforeMs            *uint64 `db:"delete_before_ms"`
	DeleteAttachmentsBeforeMs *uint64 `db:"delete_attachments_before_ms"`
}

type interaction struct {
	ID             int64  `db:"id"`
	ThreadID       string `db:"thread_id"`
	Sender         string `db:"sender"`
	Kind           uint8  `db:"kind"`
	Body           string `db:"body"`
	TimestampMs    uint64 `db:"timestamp_ms"`
	ReceivedAtMs   uint64 `db:"received_at_ms"`
	ExpiresAtMs    uint64 `db:"expires_at_ms"`
	Read           bool   `db:"read"`
	Deleted        bool   `db:"deleted"`
	HasAttachments bool   `db:"has_attachments"`
}

type store struct {
	db *db.Database
}

func newStore(d *db.Database) (*store, error) {
	s := &store{db: d}
	if err := d.Migrate("receiver", []*migration.Migration{
		{
			Name: "create-initial-tables",
			Func: func(tx *sql.Tx) error {
				_, err := tx.Exec(`
CREATE TABLE contacts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	profile_key BLOB,
	blocked INTEGER NOT NULL DEFAULT 0,
	approved INTEGER NOT NULL DEFAULT 0,
	disappearing_version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE threads (
	id TEXT PRIMARY KEY,
	variant INTEGER NOT NULL,
	visible INTEGER NOT NULL DEFAULT 0,
	disappearing_type INTEGER NOT NULL DEFAULT 0,
	disappearing_duration_sec INTEGER NOT NULL DEFAULT 0,
	config_timestamp_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE groups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	auth_data BLOB,
	destroyed INTEGER NOT NULL DEFAULT 0,
	kicked INTEGER NOT NULL DEFAULT 0,
	delete_before_ms INTEGER,
	delete_attachments_before_ms INTEGER
);

CREATE TABLE interactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	kind INTEGER NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	timestamp_ms INTEGER NOT NULL,
	received_at_ms INTEGER NOT NULL DEFAULT 0,
	expires_at_ms INTEGER NOT NULL DEFAULT 0,
	read INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0,
	has_attachments INTEGER NOT NULL DEFAULT 0,
	UNIQUE(thread_id, sender, timestamp_ms)
);
CREATE INDEX interactions_thread_timestamp ON interactions (thread_id, timestamp_ms);

CREATE TABLE reactions (
	thread_id TEXT NOT NULL,
	interaction_timestamp_ms INTEGER NOT NULL,
	reactor TEXT NOT NULL,
	emoji TEXT NOT NULL,
	action INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (thread_id, interaction_timestamp_ms, reactor, emoji)
);

CREATE TABLE jobs (
	key TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	thread_id TEXT NOT NULL,
	scheduled_at_ms INTEGER NOT NULL
);
`)
				return err
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("receiver: error migrating store %w", err)
	}
	return s, nil
}

func (s *store) contact(id string) (*contact, error) {
	c := &contact{}
	if err := s.db.Tx.Get(c, "SELECT * FROM contacts WHERE id = ?", id); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *store) upsertContact(c *contact) error {
	_, err := s.db.Tx.NamedExec(`
INSERT INTO contacts (id, name, avatar_url, profile_key, blocked, approved, disappearing_version)
VALUES (:id, :name, :avatar_url, :profile_key, :blocked, :approved, :disappearing_version)
ON CONFLICT (id) DO UPDATE
SET name = :name, avatar_url = :avatar_url, profile_key = :profile_key,
	blocked = :blocked, approved = :approved, disappearing_version = :disappearing_version
`, c)
	return err
}

// applyProfile refreshes the sender's display profile from attached metadata.
func (s *store) applyProfile(id string, p *wire.Profile) error {
	if p == nil {
		return nil
	}
	res, err := s.db.Tx.Exec(`
UPDATE contacts SET name = ?, avatar_url = ?, profile_key = ? WHERE id = ?
`, p.Name, p.AvatarURL, p.ProfileKey, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = s.db.Tx.Exec(`
INSERT INTO contacts (id, name, avatar_url, profile_key) VALUES (?, ?, ?, ?)
`, id, p.Name, p.AvatarURL, p.ProfileKey)
	}
	return err
}

func (s *store) setDisappearingVersion(id string, version uint8) error {
	res, err := s.db.Tx.Exec("UPDATE contacts SET disappearing_version = ? WHERE id = ?", version, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = s.db.Tx.Exec("INSERT INTO contacts (id, disappearing_version) VALUES (?, ?)", id, version)
	}
	return err
}

func (s *store) setContactApproved(id string, approved bool) error {
	res, err := s.db.Tx.Exec("UPDATE contacts SET approved = ? WHERE id = ?", approved, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		_, err = s.db.Tx.Exec("INSERT INTO contacts (id, approved) VALUES (?, ?)", id, approved)
	}
	return err
}

func (s *store) thread(id string) (*thread, error) {
	t := &thread{}
	if err := s.db.Tx.Get(t, "SELECT * FROM threads WHERE id = ?", id); err != nil {
		return nil, err
	}
	return t, nil
}

// ensureThread inserts a hidden thread row if none exists yet.
func (s *store) ensureThread(id string, variant ThreadVariant) (*thread, error) {
	if _, err := s.db.Tx.Exec(`
INSERT INTO threads (id, variant) VALUES (?, ?) ON CONFLICT (id) DO NOTHING
`, id, uint8(variant)); err != nil {
		return nil, err
	}
	return s.thread(id)
}

func (s *store) setThreadVisible(id string, visible bool) error {
	_, err := s.db.Tx.Exec("UPDATE threads SET visible = ? WHERE id = ?", visible, id)
	return err
}

func (s *store) setThreadDisappearing(id string, typ uint8, durationSec uint32) error {
	_, err := s.db.Tx.Exec(`
UPDATE threads SET disappearing_type = ?, disappearing_duration_sec = ? WHERE id = ?
`, typ, durationSec, id)
	return err
}

func (s *store) group(id string) (*group, error) {
	g := &group{}
	if err := s.db.Tx.Get(g, "SELECT * FROM groups WHERE id = ?", id); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *store) upsertGroup(g *group) error {
	_, err := s.db.Tx.NamedExec(`
INSERT INTO groups (id, name, auth_data, destroyed, kicked, delete_before_ms, delete_attachments_before_ms)
VALUES (:id, :name, :auth_data, :destroyed, :kicked, :delete_before_ms, :delete_attachments_before_ms)
ON CONFLICT (id) DO UPDATE
SET name = :name, auth_data = :auth_data, destroyed = :destroyed, kicked = :kicked,
	delete_before_ms = :delete_before_ms, delete_attachments_before_ms = :delete_attachments_before_ms
`, g)
	return err
}

func (s *store) setGroupKicked(id string) error {
	_, err := s.db.Tx.Exec(`
INSERT INTO groups (id, kicked) VALUES (?, 1) ON CONFLICT (id) DO UPDATE SET kicked = 1
`, id)
	return err
}

func (s *store) insertInteraction(i *interaction) (int64, error) {
	res, err := s.db.Tx.NamedExec(`
INSERT INTO interactions (thread_id, sender, kind, body, timestamp_ms, received_at_ms, expires_at_ms, read, deleted, has_attachments)
VALUES (:thread_id, :sender, :kind, :body, :timestamp_ms, :received_at_ms, :expires_at_ms, :read, :deleted, :has_attachments)
`, i)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *store) interactionExists(threadID, sender string, timestampMs uint64) (bool, error) {
	var count int
	if err := s.db.Tx.Get(&count, `
SELECT count(*) FROM interactions WHERE thread_id = ? AND sender = ? AND timestamp_ms = ?
`, threadID, sender, timestampMs); err != nil {
		return false, err
	}
	return count > 0, nil
}

// interactionExistsAt matches the reaction key, which carries the target's
// timestamp but not its sender. Deleted rows don't count.
func (s *store) interactionExistsAt(threadID string, timestampMs uint64) (bool, error) {
	var count int
	if err := s.db.Tx.Get(&count, `
SELECT count(*) FROM interactions WHERE thread_id = ? AND timestamp_ms = ? AND deleted = 0
`, threadID, timestampMs); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *store) countInteractions(threadID string) (int, error) {
	var count int
	if err := s.db.Tx.Get(&count, "SELECT count(*) FROM interactions WHERE thread_id = ?", threadID); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *store) markInteractionsRead(threadID string, timestamps []uint64) (int64, error) {
	if len(timestamps) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In("UPDATE interactions SET read = 1 WHERE thread_id = ? AND timestamp_ms IN (?)", threadID, timestamps)
	if err != nil {
		return 0, err
	}
	res, err := s.db.Tx.Exec(s.db.Tx.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *store) markInteractionDeletedByTimestamp(threadID string, timestampMs uint64) (bool, error) {
	res, err := s.db.Tx.Exec(`
UPDATE interactions SET deleted = 1, body = '' WHERE thread_id = ? AND timestamp_ms = ?
`, threadID, timestampMs)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *store) markInteractionsDeletedBySender(threadID, sender string) (int64, error) {
	res, err := s.db.Tx.Exec(`
UPDATE interactions SET deleted = 1, body = '' WHERE thread_id = ? AND sender = ?
`, threadID, sender)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *store) setGroupName(id, name string) error {
	_, err := s.db.Tx.Exec(`
INSERT INTO groups (id, name) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET name = excluded.name
`, id, name)
	return err
}

func (s *store) markInteractionDeleted(threadID, sender string, timestampMs uint64) (bool, error) {
	res, err := s.db.Tx.Exec(`
UPDATE interactions SET deleted = 1, body = '' WHERE thread_id = ? AND sender = ? AND timestamp_ms = ?
`, threadID, sender, timestampMs)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *store) interactionRead(id int64) (bool, error) {
	var read bool
	if err := s.db.Tx.Get(&read, "SELECT read FROM interactions WHERE id = ?", id); err != nil {
		return false, err
	}
	return read, nil
}

func (s *store) upsertReaction(threadID string, interactionTimestampMs uint64, reactor, emoji string, action uint8) error {
	_, err := s.db.Tx.Exec(`
INSERT INTO reactions (thread_id, interaction_timestamp_ms, reactor, emoji, action)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (thread_id, interaction_timestamp_ms, reactor, emoji) DO UPDATE SET action = excluded.action
`, threadID, interactionTimestampMs, reactor, emoji, action)
	return err
}

// scheduleJob inserts a job once per key; repeated schedules within the same
// transaction (or after) collapse into the existing row.
func (s *store) scheduleJob(key, kind, threadID string, atMs uint64) (bool, error) {
	res, err := s.db.Tx.Exec(`
INSERT INTO jobs (key, kind, thread_id, scheduled_at_ms) VALUES (?, ?, ?, ?)
ON CONFLICT (key) DO NOTHING
`, key, kind, threadID, atMs)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *store) jobCount(kind string) (int, error) {
	var count int
	if err := s.db.Tx.Get(&count, "SELECT count(*) FROM jobs WHERE kind = ?", kind); err != nil {
		return 0, err
	}
	return count, nil
}
