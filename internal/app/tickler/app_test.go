package tickler

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamby/tickle-me-email/internal/app/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStripMboxEnvelope(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "envelope line dropped",
			in:   "From alice@example.org Tue Mar  5 10:00:00 2024\nSubject: hi\n\nbody\n",
			want: "Subject: hi\n\nbody\n",
		},
		{
			name: "no envelope",
			in:   "Subject: hi\n\nbody\n",
			want: "Subject: hi\n\nbody\n",
		},
		{
			name: "From header is not an envelope",
			in:   "From: alice@example.org\nSubject: hi\n\nbody\n",
			want: "From: alice@example.org\nSubject: hi\n\nbody\n",
		},
		{
			name: "envelope without newline",
			in:   "From alice@example.org",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(stripMboxEnvelope([]byte(tt.in))))
		})
	}
}

func TestResolveSubjects(t *testing.T) {
	t.Run("words joined into one subject", func(t *testing.T) {
		subjects, err := resolveSubjects([]string{"buy", "more", "stamps"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"buy more stamps"}, subjects)
	})

	t.Run("dash reads one entry per line", func(t *testing.T) {
		stdin := strings.NewReader("first task\n\n  second task  \n")
		subjects, err := resolveSubjects([]string{"-"}, stdin)
		require.NoError(t, err)
		assert.Equal(t, []string{"first task", "second task"}, subjects)
	})

	t.Run("blank input rejected", func(t *testing.T) {
		_, err := resolveSubjects([]string{"  "}, nil)
		assert.Error(t, err)
	})
}

func TestReadMessageSource(t *testing.T) {
	t.Run("dash means stdin", func(t *testing.T) {
		raw, err := readMessageSource("-", strings.NewReader("Subject: hi\n\nbody\n"))
		require.NoError(t, err)
		assert.Equal(t, "Subject: hi\n\nbody\n", string(raw))
	})

	t.Run("empty path means stdin", func(t *testing.T) {
		raw, err := readMessageSource("", strings.NewReader("x"))
		require.NoError(t, err)
		assert.Equal(t, "x", string(raw))
	})

	t.Run("file path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "msg.eml")
		require.NoError(t, os.WriteFile(path, []byte("Subject: hi\n"), 0o600))

		raw, err := readMessageSource(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "Subject: hi\n", string(raw))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := readMessageSource(filepath.Join(t.TempDir(), "absent.eml"), nil)
		assert.Error(t, err)
	})
}

func TestSelfAddress(t *testing.T) {
	tests := []struct {
		name string
		imap string
		smtp string
		want string
	}{
		{"imap login is an address", "alice@example.org", "relay-user", "alice@example.org"},
		{"falls back to smtp login", "alice", "alice@example.org", "alice@example.org"},
		{"neither is an address", "alice", "relay-user", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &App{cfg: config.Config{
				IMAP: config.Server{Username: tt.imap},
				SMTP: config.Server{Username: tt.smtp},
			}}
			assert.Equal(t, tt.want, app.selfAddress())
		})
	}
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	in := time.Date(2024, 3, 5, 17, 42, 13, 999, loc)

	got := startOfDay(in)

	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, loc), got)
	assert.Equal(t, loc, got.Location())
}

func TestRedact(t *testing.T) {
	assert.Empty(t, redact(""))
	assert.Equal(t, "********", redact("hunter2"))
	assert.Equal(t, "********", redact("a much longer secret value"))
}

func TestPrintConfigRedactsSecrets(t *testing.T) {
	var out bytes.Buffer
	app := New(config.Config{
		IMAP: config.Server{Host: "mail.example.org", Port: 993, Username: "alice", Password: "hunter2"},
	}, discardLogger())
	app.out = &out

	require.NoError(t, app.PrintConfig())

	assert.Contains(t, out.String(), "mail.example.org")
	assert.NotContains(t, out.String(), "hunter2")
}

func TestSentHistoryRejectsNonPositiveDays(t *testing.T) {
	app := New(config.Config{}, discardLogger())
	assert.Error(t, app.SentHistory(0))
	assert.Error(t, app.SentHistory(-3))
}
