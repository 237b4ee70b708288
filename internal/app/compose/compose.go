// Package compose assembles the synthetic messages this tool injects into
// mailboxes: TODO entries, drafts and mbox imports, with or without
// attachments.
package compose

import (
	"bytes"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/google/uuid"
)

// Message is a message under construction: headers plus either one flat
// text body or, after promotion, a list of MIME parts.
type Message struct {
	header message.Header
	body   []byte
	parts  []part
}

type part struct {
	header message.Header
	body   []byte
}

// New builds a flat text message with the usual synthetic headers. Empty
// from/to are simply omitted.
func New(from, to, subject, body string) *Message {
	var h message.Header
	h.Set("MIME-Version", "1.0")
	h.Set("Date", time.Now().Format(time.RFC1123Z))
	h.Set("Message-ID", fmt.Sprintf("<%s@tickle-me-email>", uuid.NewString()))
	if from != "" {
		h.Set("From", from)
	}
	if to != "" {
		h.Set("To", to)
	}
	h.Set("Subject", subject)
	h.Set("Content-Type", "text/plain; charset=utf-8")

	return &Message{header: h, body: []byte(body)}
}

// Attach embeds a file as a new attachment part, promoting the message
// into a multipart container first if necessary.
//
// The content type is guessed from the filename extension. Text payloads
// that are not valid UTF-8 are not an error; they fall back to an opaque
// base64-encoded binary part.
func (m *Message) Attach(filename string, payload []byte) {
	ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	var h message.Header
	switch {
	case strings.HasPrefix(ctype, "text/"):
		if utf8.Valid(payload) {
			h.Set("Content-Type", ctype)
			h.Set("Content-Transfer-Encoding", "quoted-printable")
		} else {
			h.Set("Content-Type", "application/octet-stream")
			h.Set("Content-Transfer-Encoding", "base64")
		}
	case strings.HasPrefix(ctype, "audio/"), strings.HasPrefix(ctype, "image/"):
		h.Set("Content-Type", ctype)
		h.Set("Content-Transfer-Encoding", "base64")
	default:
		h.Set("Content-Type", ctype)
		h.Set("Content-Transfer-Encoding", "base64")
	}
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(filename)))

	m.promote()
	m.parts = append(m.parts, part{header: h, body: payload})
}

// promote turns a flat message into a multipart/mixed container: the
// original headers move onto the container and the flat body becomes the
// first (text) part.
func (m *Message) promote() {
	if len(m.parts) > 0 {
		return
	}

	container := m.header.Copy()
	container.Set("Content-Type", "multipart/mixed")

	var th message.Header
	th.Set("Content-Type", "text/plain; charset=utf-8")

	m.parts = []part{{header: th, body: m.body}}
	m.header = container
	m.body = nil
}

// Bytes serializes the message with CRLF line endings, encoding each part
// per its Content-Transfer-Encoding header.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer

	w, err := message.CreateWriter(&buf, m.header)
	if err != nil {
		return nil, fmt.Errorf("writing message header: %w", err)
	}

	if len(m.parts) == 0 {
		if _, err := w.Write(m.body); err != nil {
			return nil, fmt.Errorf("writing message body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	for _, p := range m.parts {
		pw, err := w.CreatePart(p.header)
		if err != nil {
			return nil, fmt.Errorf("writing message part: %w", err)
		}
		if _, err := pw.Write(p.body); err != nil {
			return nil, fmt.Errorf("writing part body: %w", err)
		}
		if err := pw.Close(); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NormalizeCRLF rewrites bare LF line endings to the CRLF form IMAP
// literals require. Existing CRLF pairs are left alone.
func NormalizeCRLF(raw []byte) []byte {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(normalized, []byte("\n"), []byte("\r\n"))
}
