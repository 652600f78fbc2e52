package receiver

import (
	"database/sql"
	"errors"
)

const jobExpiryRecompute = "expiry-recompute"

// finalize runs after every successfully handled message. It schedules a
// single expiry-recompute job per thread and promotes hidden threads to
// visible for kinds a user would expect to surface a conversation.
func (r *Receiver) finalize(m *StandardMessage, info *InsertedInteractionInfo) error {
	if m.ThreadVariant != ThreadCommunity {
		key := jobExpiryRecompute + ":" + m.ThreadID
		scheduled, err := r.store.scheduleJob(key, jobExpiryRecompute, m.ThreadID, r.clock.CurrentTimeMs())
		if err != nil {
			return err
		}
		if scheduled {
			r.log.Debugf("scheduled %s for %s", jobExpiryRecompute, m.ThreadID)
		}
	}

	threadID := m.ThreadID
	if info != nil {
		threadID = info.ThreadID
	}
	if !r.promotesVisibility(m, threadID) {
		return nil
	}
	t, err := r.store.thread(threadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if t.Visible {
		return nil
	}
	return r.store.setThreadVisible(threadID, true)
}

func (r *Receiver) promotesVisibility(m *StandardMessage, threadID string) bool {
	switch m.Message.Kind() {
	case KindVisibleMessage, KindDataExtraction, KindExpirationTimerUpdate, KindMessageRequestResponse:
		return true
	case KindCallMessage:
		// calls logged in the note-to-self thread stay hidden
		return threadID != r.localID.String()
	default:
		return false
	}
}
