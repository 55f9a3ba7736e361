package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/otprelay/internal/parser"
	"github.com/mixelka/otprelay/internal/source"
	"github.com/mixelka/otprelay/pkg/models"
)

// ClientConfig configuration for IMAP client
type ClientConfig struct {
	Email       string
	Password    string
	Server      string // host:port
	Mailbox     string // defaults to INBOX
	DialTimeout time.Duration
}

// Client is an IMAP capture source for a single mailbox.
//
// Cursors have the form "<uidvalidity>:<last uid>". A UIDVALIDITY change
// means the server renumbered the mailbox and the cursor is invalid.
type Client struct {
	config    ClientConfig
	html      *parser.HTMLParser
	client    *client.Client
	logger    *slog.Logger
	mu        sync.Mutex
	connected bool
}

var _ source.Source = (*Client)(nil)

// NewClient creates a new IMAP client. It connects lazily on first use.
func NewClient(cfg ClientConfig, html *parser.HTMLParser, logger *slog.Logger) *Client {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		html:   html,
		logger: logger.With("component", "imap", "email", cfg.Email),
	}
}

// Name implements source.Source
func (c *Client) Name() string {
	return models.SourceEmail
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.connected {
		return nil
	}

	c.logger.Info("connecting to IMAP server", "server", c.config.Server)

	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: c.config.DialTimeout}}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Server)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}

	if err := imapClient.Login(c.config.Email, c.config.Password); err != nil {
		imapClient.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	c.client = imapClient
	c.connected = true
	c.logger.Info("connected to IMAP server")
	return nil
}

// examine connects if needed and opens the mailbox read-only. Caller holds mu.
func (c *Client) examine(ctx context.Context) (*imap.MailboxStatus, error) {
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	mbox, err := c.client.Select(c.config.Mailbox, true)
	if err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("failed to select %s: %w", c.config.Mailbox, err)
	}
	return mbox, nil
}

// Baseline implements source.Source
func (c *Client) Baseline(ctx context.Context) (models.Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mbox, err := c.examine(ctx)
	if err != nil {
		return models.Cursor{}, err
	}

	highest, err := c.highestUID(mbox)
	if err != nil {
		return models.Cursor{}, err
	}
	return formatCursor(mbox.UidValidity, highest), nil
}

// highestUID returns the largest UID in the selected mailbox. Caller holds mu.
func (c *Client) highestUID(mbox *imap.MailboxStatus) (uint32, error) {
	if mbox.UidNext > 0 {
		return mbox.UidNext - 1, nil
	}

	uids, err := c.client.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		c.dropLocked()
		return 0, fmt.Errorf("failed to search: %w", err)
	}
	if len(uids) == 0 {
		return 0, nil
	}
	return slices.Max(uids), nil
}

// Changes implements source.Source
func (c *Client) Changes(ctx context.Context, cursor models.Cursor) (models.Cursor, []string, error) {
	validity, lastUID, err := parseCursor(cursor.HistoryID)
	if err != nil {
		return models.Cursor{}, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mbox, err := c.examine(ctx)
	if err != nil {
		return models.Cursor{}, nil, err
	}
	if mbox.UidValidity != validity {
		c.logger.Warn("mailbox UIDVALIDITY changed", "old", validity, "new", mbox.UidValidity)
		return models.Cursor{}, nil, source.ErrCursorInvalid
	}

	// "N:*" always includes the highest UID even when it is below N
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(lastUID+1, 0)
	criteria := imap.NewSearchCriteria()
	criteria.Uid = seqSet

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		c.dropLocked()
		return models.Cursor{}, nil, fmt.Errorf("failed to search: %w", err)
	}

	uids = slices.DeleteFunc(uids, func(uid uint32) bool { return uid <= lastUID })
	slices.Sort(uids)

	next := lastUID
	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
		next = max(next, uid)
	}
	return formatCursor(validity, next), ids, nil
}

// Fetch implements source.Source
func (c *Client) Fetch(ctx context.Context, id string) (*models.SourceMessage, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message uid %q: %w", id, source.ErrMessageGone)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.examine(ctx); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var fetched *imap.Message
	for msg := range messages {
		if msg.Uid == uint32(uid) {
			fetched = msg
		}
	}
	if err := <-done; err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	if fetched == nil {
		return nil, fmt.Errorf("uid %d: %w", uid, source.ErrMessageGone)
	}

	return c.parseMessage(fetched, section), nil
}

// parseMessage converts an IMAP message to a source message
func (c *Client) parseMessage(msg *imap.Message, section *imap.BodySectionName) *models.SourceMessage {
	out := &models.SourceMessage{
		ID:         strconv.FormatUint(uint64(msg.Uid), 10),
		Source:     models.SourceEmail,
		ReceivedAt: msg.InternalDate,
	}

	if msg.Envelope != nil {
		out.Subject = msg.Envelope.Subject
		if out.ReceivedAt.IsZero() {
			out.ReceivedAt = msg.Envelope.Date
		}
		if len(msg.Envelope.From) > 0 {
			out.From = msg.Envelope.From[0].Address()
			out.FromName = msg.Envelope.From[0].PersonalName
		}
	}

	if body := msg.GetBody(section); body != nil {
		text, err := ParseBody(body, c.html)
		if err != nil {
			c.logger.Warn("failed to parse message body", "uid", msg.Uid, "error", err)
		}
		out.Body = text
	}

	return out
}

// ParseBody reads a MIME message and returns its text, preferring text/plain
// and falling back to text/html converted to text
func ParseBody(r io.Reader, html *parser.HTMLParser) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	var plain, rich string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return plain, fmt.Errorf("failed to read part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/plain") && plain == "":
			plain = string(body)
		case strings.HasPrefix(ct, "text/html") && rich == "":
			rich = string(body)
		}
	}

	if plain != "" || rich == "" || html == nil {
		return plain, nil
	}
	return html.Parse(rich)
}

// dropLocked discards a broken connection so the next call reconnects. Caller holds mu.
func (c *Client) dropLocked() {
	c.connected = false
	if c.client != nil {
		imapClient := c.client
		c.client = nil
		go func() {
			if err := imapClient.Logout(); err != nil {
				imapClient.Terminate()
			}
		}()
	}
}

// Close logs out and closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	imapClient := c.client
	c.client = nil
	c.connected = false
	c.mu.Unlock()

	if imapClient == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		imapClient.Logout()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		// Force close if logout takes too long
		imapClient.Terminate()
	}
}

func formatCursor(validity, uid uint32) models.Cursor {
	return models.Cursor{
		Source:    models.SourceEmail,
		HistoryID: fmt.Sprintf("%d:%d", validity, uid),
	}
}

func parseCursor(historyID string) (uint32, uint32, error) {
	validityStr, uidStr, ok := strings.Cut(historyID, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed imap cursor %q: %w", historyID, source.ErrCursorInvalid)
	}
	validity, err := strconv.ParseUint(validityStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed imap cursor %q: %w", historyID, source.ErrCursorInvalid)
	}
	uid, err := strconv.ParseUint(uidStr, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed imap cursor %q: %w", historyID, source.ErrCursorInvalid)
	}
	return uint32(validity), uint32(uid), nil
}
