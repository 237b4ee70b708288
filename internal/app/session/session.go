// Package session wraps an IMAP connection into the stateful,
// explicitly-selected mailbox session the rest of the tool runs on.
//
// Message references come in two kinds: sequence numbers, which are only
// valid within the current selection snapshot and shift on expunge, and
// UIDs, which stay stable until the message itself is expunged. Any
// multi-step mutation must resolve a UID before the first mutating call.
package session

import (
	"log/slog"
	"mime"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/lamby/tickle-me-email/internal/app/config"
)

// Client is the narrow IMAP surface the engine and query layers run on.
type Client interface {
	ListMailboxes() ([]string, error)
	Select(mailbox string) (uint32, error)
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	ResolveUID(seq uint32) (imap.UID, error)
	SetFlag(uid imap.UID, flag imap.Flag, enable bool) error
	Copy(uid imap.UID, mailbox string) error
	Expunge() error
	FetchRaw(seq uint32) ([]byte, error)
	FetchHeader(seq uint32, fields []string) ([]byte, error)
	Append(mailbox string, flags []imap.Flag, date time.Time, raw []byte) error
	Create(mailbox string) error
}

// Session is the live implementation of Client. The connection is dialed
// lazily on the first protocol call and reused for the whole invocation.
// Callers must Select a mailbox before any sequence- or UID-addressed
// operation; nothing here selects implicitly.
type Session struct {
	cfg    config.Server
	logger *slog.Logger
	client *imapclient.Client
}

func New(cfg config.Server, logger *slog.Logger) *Session {
	return &Session{cfg: cfg, logger: logger}
}

func (s *Session) connect() (*imapclient.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	options := &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	var c *imapclient.Client
	var err error
	if s.cfg.STARTTLS {
		c, err = imapclient.DialStartTLS(addr, options)
	} else {
		c, err = imapclient.DialTLS(addr, options)
	}
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}

	if err := c.Login(s.cfg.Username, s.cfg.Password).Wait(); err != nil {
		_ = c.Logout().Wait()
		return nil, &AuthError{User: s.cfg.Username, Err: err}
	}

	s.logger.Debug("imap session established", slog.String("addr", addr))
	s.client = c
	return c, nil
}

func (s *Session) ListMailboxes() ([]string, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}

	boxes, err := c.List("", "*", nil).Collect()
	if err != nil {
		return nil, &FetchError{Diagnostic: err.Error(), Err: err}
	}

	names := make([]string, 0, len(boxes))
	for _, box := range boxes {
		names = append(names, box.Mailbox)
	}
	return names, nil
}

// Select makes mailbox the target of all subsequent sequence- and
// UID-addressed operations and returns its message count. Selecting
// invalidates sequence numbers from any previous snapshot.
func (s *Session) Select(mailbox string) (uint32, error) {
	c, err := s.connect()
	if err != nil {
		return 0, err
	}

	data, err := c.Select(mailbox, nil).Wait()
	if err != nil {
		return 0, &MailboxError{Mailbox: mailbox, Diagnostic: err.Error(), Err: err}
	}
	return data.NumMessages, nil
}

// Search returns the sequence numbers of messages matching criteria,
// ordered by internal date with the most recent first. That ordering is
// the safe default for callers that delete as they iterate: the highest
// sequence numbers are consumed before expunges shift anything below.
func (s *Session) Search(criteria *imap.SearchCriteria) ([]uint32, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}
	if criteria == nil {
		criteria = &imap.SearchCriteria{}
	}

	data, err := c.Search(criteria, nil).Wait()
	if err != nil {
		return nil, &FetchError{Diagnostic: err.Error(), Err: err}
	}
	seqs := data.AllSeqNums()
	if len(seqs) == 0 {
		return nil, nil
	}

	bufs, err := c.Fetch(imap.SeqSetNum(seqs...), &imap.FetchOptions{InternalDate: true}).Collect()
	if err != nil {
		return nil, &FetchError{Diagnostic: err.Error(), Err: err}
	}
	return orderMostRecentFirst(bufs), nil
}

// orderMostRecentFirst sorts fetched messages by internal date ascending,
// sequence number as tie-break, then reverses.
func orderMostRecentFirst(bufs []*imapclient.FetchMessageBuffer) []uint32 {
	sorted := make([]*imapclient.FetchMessageBuffer, len(bufs))
	copy(sorted, bufs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].InternalDate.Equal(sorted[j].InternalDate) {
			return sorted[i].InternalDate.Before(sorted[j].InternalDate)
		}
		return sorted[i].SeqNum < sorted[j].SeqNum
	})

	seqs := make([]uint32, len(sorted))
	for i, buf := range sorted {
		seqs[len(sorted)-1-i] = buf.SeqNum
	}
	return seqs
}

// ResolveUID converts a snapshot-scoped sequence number into the stable
// identifier that survives flag and copy operations.
func (s *Session) ResolveUID(seq uint32) (imap.UID, error) {
	c, err := s.connect()
	if err != nil {
		return 0, err
	}

	bufs, err := c.Fetch(imap.SeqSetNum(seq), &imap.FetchOptions{UID: true}).Collect()
	if err != nil {
		return 0, &FetchError{Seq: seq, Diagnostic: err.Error(), Err: err}
	}
	if len(bufs) == 0 || bufs[0].UID == 0 {
		return 0, &ParseError{What: "UID"}
	}
	return bufs[0].UID, nil
}

func (s *Session) SetFlag(uid imap.UID, flag imap.Flag, enable bool) error {
	c, err := s.connect()
	if err != nil {
		return err
	}

	op := imap.StoreFlagsAdd
	if !enable {
		op = imap.StoreFlagsDel
	}
	cmd := c.Store(imap.UIDSetNum(uid), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  []imap.Flag{flag},
	}, nil)
	if err := cmd.Close(); err != nil {
		return &FetchError{Diagnostic: err.Error(), Err: err}
	}
	return nil
}

func (s *Session) Copy(uid imap.UID, mailbox string) error {
	c, err := s.connect()
	if err != nil {
		return err
	}

	if _, err := c.Copy(imap.UIDSetNum(uid), mailbox).Wait(); err != nil {
		return &CopyError{Mailbox: mailbox, Diagnostic: err.Error(), Err: err}
	}
	return nil
}

// Expunge permanently removes messages flagged \Deleted and renumbers the
// remaining sequence numbers. Callers must not reuse sequence numbers
// obtained before the expunge, except ones strictly below every expunged
// position.
func (s *Session) Expunge() error {
	c, err := s.connect()
	if err != nil {
		return err
	}

	if _, err := c.Expunge().Collect(); err != nil {
		return &FetchError{Diagnostic: err.Error(), Err: err}
	}
	return nil
}

// FetchRaw returns the complete raw message for a sequence number without
// setting \Seen.
func (s *Session) FetchRaw(seq uint32) ([]byte, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	return s.fetchSection(seq, section)
}

// FetchHeader returns only the named header fields for a sequence number,
// so reports do not pull message bodies over the wire.
func (s *Session) FetchHeader(seq uint32, fields []string) ([]byte, error) {
	section := &imap.FetchItemBodySection{
		Specifier:    imap.PartSpecifierHeader,
		HeaderFields: fields,
		Peek:         true,
	}
	return s.fetchSection(seq, section)
}

func (s *Session) fetchSection(seq uint32, section *imap.FetchItemBodySection) ([]byte, error) {
	c, err := s.connect()
	if err != nil {
		return nil, err
	}

	bufs, err := c.Fetch(imap.SeqSetNum(seq), &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, &FetchError{Seq: seq, Diagnostic: err.Error(), Err: err}
	}
	if len(bufs) == 0 {
		return nil, &FetchError{Seq: seq, Diagnostic: "no fetch response"}
	}

	body := bufs[0].FindBodySection(section)
	if body == nil {
		return nil, &FetchError{Seq: seq, Diagnostic: "response carried no body section"}
	}
	return body, nil
}

func (s *Session) Append(mailbox string, flags []imap.Flag, date time.Time, raw []byte) error {
	c, err := s.connect()
	if err != nil {
		return err
	}

	cmd := c.Append(mailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: flags,
		Time:  date,
	})
	if _, err := cmd.Write(raw); err != nil {
		_ = cmd.Close()
		return &AppendError{Mailbox: mailbox, Diagnostic: err.Error(), Err: err}
	}
	if err := cmd.Close(); err != nil {
		return &AppendError{Mailbox: mailbox, Diagnostic: err.Error(), Err: err}
	}
	if _, err := cmd.Wait(); err != nil {
		return &AppendError{Mailbox: mailbox, Diagnostic: err.Error(), Err: err}
	}
	return nil
}

func (s *Session) Create(mailbox string) error {
	c, err := s.connect()
	if err != nil {
		return err
	}

	if err := c.Create(mailbox, nil).Wait(); err != nil {
		return &CreateError{Mailbox: mailbox, Diagnostic: err.Error(), Err: err}
	}
	return nil
}

// Close logs out once. Teardown failures are logged and swallowed; a
// half-closed connection at process exit is not worth surfacing.
func (s *Session) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Logout().Wait(); err != nil {
		s.logger.Debug("imap logout failed", slog.String("error", err.Error()))
	}
	s.client = nil
}
