package engine

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message"
)

// Sender relays one prepared message. Implemented by the SMTP layer; the
// tests substitute a recorder.
type Sender interface {
	Send(from string, recipients []string, raw []byte) error
}

// SendLater relays up to maxCount queued messages from src (0 means
// unbounded, newest first) and removes each one from the queue only after
// its relay succeeded. The first relay failure aborts the batch, so a
// failed message and everything behind it stay queued for the next run.
func (e *Engine) SendLater(src string, maxCount int, fallbackFrom string, sender Sender) (int, error) {
	count, err := e.mail.Select(src)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	seqs, err := e.mail.Search(nil)
	if err != nil {
		return 0, err
	}
	if maxCount > 0 && len(seqs) > maxCount {
		seqs = seqs[:maxCount]
	}
	// The per-message expunge below renumbers the snapshot; highest
	// sequence numbers go first.
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] })

	sent := 0
	for _, seq := range seqs {
		raw, err := e.mail.FetchRaw(seq)
		if err != nil {
			return sent, err
		}
		uid, err := e.mail.ResolveUID(seq)
		if err != nil {
			return sent, err
		}

		outgoing, from, recipients, err := prepareOutgoing(raw)
		if err != nil {
			return sent, fmt.Errorf("preparing queued message: %w", err)
		}
		if from == "" {
			from = fallbackFrom
		}

		if err := sender.Send(from, recipients, outgoing); err != nil {
			return sent, fmt.Errorf("relaying queued message: %w", err)
		}

		// Only a relayed message may be deleted.
		if err := e.mail.SetFlag(uid, imap.FlagDeleted, true); err != nil {
			return sent, err
		}
		if err := e.mail.Expunge(); err != nil {
			return sent, err
		}
		sent++

		e.logger.Info("queued message relayed",
			slog.String("src", src),
			slog.Int("recipients", len(recipients)),
		)
	}
	return sent, nil
}

// prepareOutgoing strips the Date header, so the relay does not reveal
// when the message was originally composed, and derives the envelope from
// the message: sender from the From header, recipients as the
// deduplicated union of To, Cc and Bcc.
func prepareOutgoing(raw []byte) (outgoing []byte, from string, recipients []string, err error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, "", nil, fmt.Errorf("parsing queued message: %w", err)
	}

	if addrs := parseAddresses(entity.Header.Values("From")); len(addrs) > 0 {
		from = addrs[0]
	}

	seen := make(map[string]struct{})
	for _, field := range []string{"To", "Cc", "Bcc"} {
		for _, addr := range parseAddresses(entity.Header.Values(field)) {
			key := strings.ToLower(addr)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			recipients = append(recipients, addr)
		}
	}
	if len(recipients) == 0 {
		return nil, "", nil, fmt.Errorf("queued message has no recipients")
	}

	entity.Header.Del("Date")

	var buf bytes.Buffer
	if err := entity.WriteTo(&buf); err != nil {
		return nil, "", nil, fmt.Errorf("serializing queued message: %w", err)
	}
	return buf.Bytes(), from, recipients, nil
}

// parseAddresses extracts bare addresses from header values, tolerating
// fields that fail to parse.
func parseAddresses(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		addrs, err := mail.ParseAddressList(v)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			out = append(out, a.Address)
		}
	}
	return out
}
