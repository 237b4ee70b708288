package query

import (
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamby/tickle-me-email/internal/app/session"
)

// headerMail serves canned header blocks keyed by sequence number; only
// the search and fetch paths are exercised here.
type headerMail struct {
	seqs   []uint32
	blocks map[uint32][]byte
}

var _ session.Client = (*headerMail)(nil)

func (m *headerMail) Search(*imap.SearchCriteria) ([]uint32, error) { return m.seqs, nil }

func (m *headerMail) FetchHeader(seq uint32, _ []string) ([]byte, error) {
	return m.blocks[seq], nil
}

func (m *headerMail) ListMailboxes() ([]string, error)          { return nil, nil }
func (m *headerMail) Select(string) (uint32, error)             { return uint32(len(m.seqs)), nil }
func (m *headerMail) ResolveUID(uint32) (imap.UID, error)       { return 0, nil }
func (m *headerMail) SetFlag(imap.UID, imap.Flag, bool) error   { return nil }
func (m *headerMail) Copy(imap.UID, string) error               { return nil }
func (m *headerMail) Expunge() error                            { return nil }
func (m *headerMail) FetchRaw(uint32) ([]byte, error)           { return nil, nil }
func (m *headerMail) Create(string) error                       { return nil }
func (m *headerMail) Append(string, []imap.Flag, time.Time, []byte) error {
	return nil
}

func TestSelectedFields(t *testing.T) {
	mail := &headerMail{
		seqs: []uint32{3, 2, 1},
		blocks: map[uint32][]byte{
			3: []byte("Subject: =?UTF-8?Q?Caf=C3=A9_plans?=\r\nTo: bob@example.org\r\n"),
			2: []byte("   \r\n"), // empty block, skipped
			1: []byte("To: carol@example.org\r\nSubject: plain\r\n"),
		},
	}

	records, err := New(mail).SelectedFields([]string{"Subject", "To"}, nil)

	require.NoError(t, err)
	require.Len(t, records, 2)
	// Values come back in request order, not header order, with RFC 2047
	// words decoded.
	assert.Equal(t, []string{"Café plans", "bob@example.org"}, records[0])
	assert.Equal(t, []string{"plain", "carol@example.org"}, records[1])
}

func TestSelectedFieldsMissingField(t *testing.T) {
	mail := &headerMail{
		seqs: []uint32{1},
		blocks: map[uint32][]byte{
			1: []byte("Subject: no recipient\r\n"),
		},
	}

	records, err := New(mail).SelectedFields([]string{"Subject", "To"}, nil)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"no recipient", ""}, records[0])
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than max", "hello", 10, "hello"},
		{"exactly max", "hello", 5, "hello"},
		{"cut", "hello world", 8, "hello w…"},
		{"multibyte", "héllo wörld", 8, "héllo w…"},
		{"zero max disables truncation", "hello", 0, "hello"},
		{"negative max disables truncation", "hello", -3, "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.max))
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		from string
		want string
	}{
		{"empty", "", Unknown},
		{"whitespace", "   ", Unknown},
		{"name and address", `"Alice Lidell" <alice@example.org>`, "Alice Lidell"},
		{"bare address", "alice@example.org", "alice@example.org"},
		{"angle address only", "<alice@example.org>", "alice@example.org"},
		{"unparseable", "not an address at all <<", "not an address at all <<"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.from))
		})
	}
}
