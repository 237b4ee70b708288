// Package query implements selective header fetching and the formatting
// helpers the reporting commands share.
package query

import (
	"bufio"
	"bytes"
	"mime"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message/charset"

	"github.com/lamby/tickle-me-email/internal/app/session"
)

// Unknown marks a sender with neither a display name nor an address.
const Unknown = "(unknown)"

type Query struct {
	mail session.Client
	dec  *mime.WordDecoder
}

func New(mail session.Client) *Query {
	return &Query{
		mail: mail,
		dec:  &mime.WordDecoder{CharsetReader: charset.Reader},
	}
}

// SelectedFields fetches only the named header fields for every message
// in the currently selected mailbox matching criteria (nil means ALL),
// most recent first. RFC 2047 encoded words are decoded; messages whose
// header block comes back empty are skipped. Each record holds one
// decoded value per requested field, in request order.
func (q *Query) SelectedFields(fields []string, criteria *imap.SearchCriteria) ([][]string, error) {
	seqs, err := q.mail.Search(criteria)
	if err != nil {
		return nil, err
	}

	var records [][]string
	for _, seq := range seqs {
		block, err := q.mail.FetchHeader(seq, fields)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(block)) == 0 {
			continue
		}

		hdr, err := parseHeaderBlock(block)
		if err != nil {
			return nil, err
		}

		record := make([]string, 0, len(fields))
		for _, field := range fields {
			record = append(record, q.decode(hdr.Get(field)))
		}
		records = append(records, record)
	}
	return records, nil
}

func (q *Query) decode(value string) string {
	decoded, err := q.dec.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// parseHeaderBlock reads a bare header block as returned by a
// HEADER.FIELDS fetch. Servers terminate the block with a blank line;
// one is supplied in case it is missing.
func parseHeaderBlock(block []byte) (textproto.MIMEHeader, error) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(append(block, '\r', '\n'))))
	hdr, err := r.ReadMIMEHeader()
	if err != nil && len(hdr) == 0 {
		return nil, err
	}
	return hdr, nil
}

// Truncate shortens s to at most max runes, marking the cut with an
// ellipsis. A non-positive max disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// DisplayName resolves a From-style header value to something readable:
// the display name when present, the bare address otherwise, and the
// Unknown marker when neither exists. An unparseable value is returned
// verbatim rather than hidden.
func DisplayName(from string) string {
	if strings.TrimSpace(from) == "" {
		return Unknown
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return from
	}
	if addr.Name != "" {
		return addr.Name
	}
	if addr.Address != "" {
		return addr.Address
	}
	return Unknown
}
