// Package tickler wires the session, engine, compose, relay and query
// layers into the top-level actions the command line exposes.
package tickler

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"

	"github.com/lamby/tickle-me-email/internal/app/compose"
	"github.com/lamby/tickle-me-email/internal/app/config"
	"github.com/lamby/tickle-me-email/internal/app/engine"
	"github.com/lamby/tickle-me-email/internal/app/query"
	"github.com/lamby/tickle-me-email/internal/app/relay"
	"github.com/lamby/tickle-me-email/internal/app/session"
)

// App owns the two protocol sessions for one invocation. Both are
// created lazily on first need, reused for every action in the run, and
// torn down exactly once by Close.
type App struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer

	imap *session.Session
	smtp *relay.SMTP
}

func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger, out: os.Stdout}
}

// Close releases both sessions. Safe to call on every exit path;
// teardown failures are swallowed inside the sessions themselves.
func (a *App) Close() {
	if a.imap != nil {
		a.imap.Close()
		a.imap = nil
	}
	if a.smtp != nil {
		a.smtp.Close()
		a.smtp = nil
	}
}

func (a *App) mail() (*session.Session, error) {
	if a.imap == nil {
		if err := a.cfg.RequireIMAP(); err != nil {
			return nil, err
		}
		a.imap = session.New(a.cfg.IMAP, a.logger.With(slog.String("module", "imap")))
	}
	return a.imap, nil
}

func (a *App) sender() (*relay.SMTP, error) {
	if a.smtp == nil {
		if err := a.cfg.RequireSMTP(); err != nil {
			return nil, err
		}
		a.smtp = relay.New(a.cfg.SMTP, a.logger.With(slog.String("module", "smtp")))
	}
	return a.smtp, nil
}

func (a *App) engine() (*engine.Engine, error) {
	mail, err := a.mail()
	if err != nil {
		return nil, err
	}
	return engine.New(mail, a.logger.With(slog.String("module", "engine"))), nil
}

// List prints every mailbox name in server order.
func (a *App) List() error {
	mail, err := a.mail()
	if err != nil {
		return err
	}
	names, err := mail.ListMailboxes()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(a.out, name)
	}
	return nil
}

// Move transfers every message in src into dst.
func (a *App) Move(src, dst string) error {
	eng, err := a.engine()
	if err != nil {
		return err
	}
	moved, err := eng.Move(src, dst, false)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "moved %d message(s) from %s to %s\n", moved, src, dst)
	return nil
}

// Rotate shifts the numbered tickler tiers down by one, draining the
// oldest tier into target.
func (a *App) Rotate(template string, start, stop int, target string) error {
	eng, err := a.engine()
	if err != nil {
		return err
	}
	return eng.Rotate(template, start, stop, target)
}

// CreateFolders creates count sequentially numbered mailboxes.
func (a *App) CreateFolders(template string, start, count int) error {
	eng, err := a.engine()
	if err != nil {
		return err
	}
	return eng.CreateFolders(template, start, count)
}

// SendMail reads one complete message from path ("" or "-" means stdin)
// and queues it in the send-later mailbox, to be relayed by the next
// scheduled send-later run. This is the sendmail(1) stand-in MUAs invoke.
func (a *App) SendMail(path string, stdin io.Reader) error {
	raw, err := readMessageSource(path, stdin)
	if err != nil {
		return err
	}
	mailc, err := a.mail()
	if err != nil {
		return err
	}
	return mailc.Append(
		a.cfg.Folders.SendLater,
		[]imap.Flag{imap.FlagSeen},
		time.Now(),
		compose.NormalizeCRLF(raw),
	)
}

// SendLater relays up to maxCount queued messages (0 means all) and
// removes each from the queue only after its relay succeeded.
func (a *App) SendLater(src string, maxCount int) error {
	eng, err := a.engine()
	if err != nil {
		return err
	}
	smtp, err := a.sender()
	if err != nil {
		return err
	}
	sent, err := eng.SendLater(src, maxCount, a.selfAddress(), smtp)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "sent %d message(s) from %s\n", sent, src)
	return nil
}

// Todo appends one TODO entry per subject, or with no subjects prints
// the existing entries instead.
func (a *App) Todo(words []string, stdin io.Reader) error {
	if len(words) == 0 {
		return a.printSubjects(a.cfg.Folders.TODO)
	}
	subjects, err := resolveSubjects(words, stdin)
	if err != nil {
		return err
	}
	for _, subject := range subjects {
		if err := a.appendSynthetic(a.cfg.Folders.TODO, subject, nil); err != nil {
			return err
		}
	}
	return nil
}

// Draft appends a draft message carrying the \Draft flag.
func (a *App) Draft(words []string, stdin io.Reader) error {
	subjects, err := resolveSubjects(words, stdin)
	if err != nil {
		return err
	}
	for _, subject := range subjects {
		if err := a.appendSynthetic(a.cfg.Folders.Drafts, subject, []imap.Flag{imap.FlagDraft}); err != nil {
			return err
		}
	}
	return nil
}

// Mbox imports one raw message into the TODO mailbox. A leading mbox
// "From " envelope line is tolerated, and the message's own Date header
// becomes the internal date when parseable.
func (a *App) Mbox(rawText string) error {
	raw := compose.NormalizeCRLF(stripMboxEnvelope([]byte(rawText)))
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("empty message")
	}

	date := time.Now()
	if msg, err := mail.ReadMessage(bytes.NewReader(raw)); err == nil {
		if d, err := msg.Header.Date(); err == nil {
			date = d
		}
	}

	mailc, err := a.mail()
	if err != nil {
		return err
	}
	return mailc.Append(a.cfg.Folders.TODO, nil, date, raw)
}

// Subjects prints a decoded subject report for each named mailbox. A
// single "-" argument reads mailbox names from stdin.
func (a *App) Subjects(mailboxes []string, stdin io.Reader) error {
	if len(mailboxes) == 1 && mailboxes[0] == "-" {
		mailboxes = nil
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			if name := strings.TrimSpace(scanner.Text()); name != "" {
				mailboxes = append(mailboxes, name)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading mailbox names: %w", err)
		}
	}
	if len(mailboxes) == 0 {
		return fmt.Errorf("no mailboxes given")
	}

	for _, mailbox := range mailboxes {
		fmt.Fprintf(a.out, "%s:\n", mailbox)
		if err := a.printSubjects(mailbox); err != nil {
			return err
		}
	}
	return nil
}

// Sent prints recipient and subject of every message sent today.
func (a *App) Sent() error {
	mailc, err := a.mail()
	if err != nil {
		return err
	}
	if _, err := mailc.Select(a.cfg.Folders.Sent); err != nil {
		return err
	}

	midnight := startOfDay(time.Now())
	records, err := query.New(mailc).SelectedFields(
		[]string{"To", "Subject"},
		&imap.SearchCriteria{Since: midnight},
	)
	if err != nil {
		return err
	}
	for _, record := range records {
		fmt.Fprintf(a.out, "%s\t%s\n",
			query.DisplayName(record[0]),
			query.Truncate(record[1], subjectWidth),
		)
	}
	return nil
}

const subjectWidth = 78

func (a *App) printSubjects(mailbox string) error {
	mailc, err := a.mail()
	if err != nil {
		return err
	}
	count, err := mailc.Select(mailbox)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	records, err := query.New(mailc).SelectedFields([]string{"Subject"}, nil)
	if err != nil {
		return err
	}
	for _, record := range records {
		fmt.Fprintln(a.out, query.Truncate(record[0], subjectWidth))
	}
	return nil
}

func (a *App) appendSynthetic(mailbox, subject string, flags []imap.Flag) error {
	self := a.selfAddress()
	raw, err := compose.New(self, self, subject, "").Bytes()
	if err != nil {
		return err
	}
	mailc, err := a.mail()
	if err != nil {
		return err
	}
	if err := mailc.Append(mailbox, flags, time.Now(), raw); err != nil {
		return err
	}
	a.logger.Info("message appended",
		slog.String("mailbox", mailbox),
		slog.String("subject", subject),
	)
	return nil
}

// selfAddress picks an address to stamp onto synthetic messages: the
// IMAP login when it is a full address, the SMTP login otherwise.
func (a *App) selfAddress() string {
	if strings.Contains(a.cfg.IMAP.Username, "@") {
		return a.cfg.IMAP.Username
	}
	if strings.Contains(a.cfg.SMTP.Username, "@") {
		return a.cfg.SMTP.Username
	}
	return ""
}

// resolveSubjects turns command words into entry subjects. The single
// word "-" switches to stdin, one entry per non-empty line.
func resolveSubjects(words []string, stdin io.Reader) ([]string, error) {
	if len(words) == 1 && words[0] == "-" {
		var subjects []string
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				subjects = append(subjects, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading entries: %w", err)
		}
		return subjects, nil
	}

	subject := strings.TrimSpace(strings.Join(words, " "))
	if subject == "" {
		return nil, fmt.Errorf("empty subject")
	}
	return []string{subject}, nil
}

func readMessageSource(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading message from stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading message file: %w", err)
	}
	return raw, nil
}

// stripMboxEnvelope drops a leading mbox "From " separator line.
func stripMboxEnvelope(raw []byte) []byte {
	if !bytes.HasPrefix(raw, []byte("From ")) {
		return raw
	}
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		return raw[i+1:]
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
