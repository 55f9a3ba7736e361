package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mixelka/otprelay/pkg/models"
)

// DefaultSMSInboxCapacity is used when a non-positive capacity is configured
const DefaultSMSInboxCapacity = 1000

// InboundSMS is an SMS pushed to the inbox by a gateway webhook
type InboundSMS struct {
	ID         string
	From       string
	Body       string
	ReceivedAt time.Time
}

type smsEntry struct {
	seq uint64
	msg models.SourceMessage
}

// SMSInbox is a bounded, append-only log of inbound SMS.
//
// Cursors have the form "<epoch>:<seq>". The epoch changes every process
// start, so a cursor persisted by an earlier run is reported invalid, as is a
// cursor that points before the oldest retained message.
type SMSInbox struct {
	mu       sync.Mutex
	epoch    string
	capacity int
	nextSeq  uint64
	entries  []smsEntry // ordered by seq, at most capacity long
	now      func() time.Time
}

// NewSMSInbox creates an empty inbox
func NewSMSInbox(capacity int) *SMSInbox {
	if capacity <= 0 {
		capacity = DefaultSMSInboxCapacity
	}
	return &SMSInbox{
		epoch:    uuid.NewString(),
		capacity: capacity,
		nextSeq:  1,
		now:      time.Now,
	}
}

// Name implements Source
func (b *SMSInbox) Name() string {
	return models.SourceSMS
}

// Append stores an inbound SMS and returns its message id. An id that is
// still retained is rejected with ErrDuplicateMessage.
func (b *SMSInbox) Append(sms InboundSMS) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := sms.ID
	if id == "" {
		id = "sms-" + uuid.NewString()
	}
	for i := range b.entries {
		if b.entries[i].msg.ID == id {
			return "", fmt.Errorf("sms %s: %w", id, ErrDuplicateMessage)
		}
	}
	receivedAt := sms.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = b.now()
	}

	b.entries = append(b.entries, smsEntry{
		seq: b.nextSeq,
		msg: models.SourceMessage{
			ID:         id,
			Source:     models.SourceSMS,
			From:       sms.From,
			Body:       sms.Body,
			ReceivedAt: receivedAt,
		},
	})
	b.nextSeq++

	if over := len(b.entries) - b.capacity; over > 0 {
		b.entries = append([]smsEntry(nil), b.entries[over:]...)
	}
	return id, nil
}

// Baseline implements Source
func (b *SMSInbox) Baseline(ctx context.Context) (models.Cursor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor(b.nextSeq - 1), nil
}

// Changes implements Source
func (b *SMSInbox) Changes(ctx context.Context, cursor models.Cursor) (models.Cursor, []string, error) {
	epoch, last, err := parseSMSCursor(cursor.HistoryID)
	if err != nil {
		return models.Cursor{}, nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if epoch != b.epoch || last >= b.nextSeq {
		return models.Cursor{}, nil, ErrCursorInvalid
	}
	if len(b.entries) > 0 && last+1 < b.entries[0].seq {
		// Messages after the cursor were already evicted
		return models.Cursor{}, nil, ErrCursorInvalid
	}

	var ids []string
	for _, e := range b.entries {
		if e.seq > last {
			ids = append(ids, e.msg.ID)
		}
	}
	return b.cursor(b.nextSeq - 1), ids, nil
}

// Fetch implements Source
func (b *SMSInbox) Fetch(ctx context.Context, id string) (*models.SourceMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.entries {
		if b.entries[i].msg.ID == id {
			msg := b.entries[i].msg
			return &msg, nil
		}
	}
	return nil, fmt.Errorf("sms %s: %w", id, ErrMessageGone)
}

func (b *SMSInbox) cursor(seq uint64) models.Cursor {
	return models.Cursor{
		Source:    models.SourceSMS,
		HistoryID: b.epoch + ":" + strconv.FormatUint(seq, 10),
	}
}

func parseSMSCursor(historyID string) (string, uint64, error) {
	epoch, seqStr, ok := strings.Cut(historyID, ":")
	if !ok || epoch == "" {
		return "", 0, fmt.Errorf("malformed sms cursor %q: %w", historyID, ErrCursorInvalid)
	}
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed sms cursor %q: %w", historyID, ErrCursorInvalid)
	}
	return epoch, seq, nil
}
