package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir mirrors t.Chdir (Go 1.24+), which is unavailable on the Go 1.21
// toolchain used to build this module.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
log_level: debug
imap:
  host: mail.example.org
  port: 1993
  username: alice
  password: hunter2
  starttls: true
smtp:
  host: smtp.example.org
  username: alice
  password: hunter2
folders:
  todo: Tasks
`)

	cfg, err := Load(path, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "mail.example.org", cfg.IMAP.Host)
	assert.Equal(t, 1993, cfg.IMAP.Port)
	assert.True(t, cfg.IMAP.STARTTLS)
	assert.Equal(t, "Tasks", cfg.Folders.TODO)
	// Unset values still get defaults.
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "Drafts", cfg.Folders.Drafts)
	assert.Equal(t, "Sent", cfg.Folders.Sent)
	assert.Equal(t, "SENDLATER", cfg.Folders.SendLater)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
imap:
  host: mail.example.org
  username: alice
  password: from-file
`)
	t.Setenv("IMAP_PASSWORD", "from-env")
	t.Setenv("FOLDER_TODO", "Inbox.TODO")

	cfg, err := Load(path, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.IMAP.Password)
	assert.Equal(t, "Inbox.TODO", cfg.Folders.TODO)
	assert.Equal(t, "alice", cfg.IMAP.Username)
}

func TestMissingFileIsEnvironmentOnly(t *testing.T) {
	t.Setenv("IMAP_HOST", "mail.example.org")
	t.Setenv("IMAP_USERNAME", "alice")
	t.Setenv("IMAP_PASSWORD", "hunter2")

	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "absent.yaml"), filepath.Join(dir, "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, "mail.example.org", cfg.IMAP.Host)
	assert.Equal(t, 993, cfg.IMAP.Port)
	assert.NoError(t, cfg.RequireIMAP())
}

func TestEnvFileLoaded(t *testing.T) {
	env := writeFile(t, ".env", "IMAP_HOST=dotenv.example.org\n")
	os.Unsetenv("IMAP_HOST")
	t.Cleanup(func() { os.Unsetenv("IMAP_HOST") })

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), env)
	require.NoError(t, err)

	assert.Equal(t, "dotenv.example.org", cfg.IMAP.Host)
}

func TestDefaultFilepath(t *testing.T) {
	t.Run("working directory config wins", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: debug\n"), 0o600))
		chdir(t, dir)

		assert.Equal(t, "./config.yaml", DefaultFilepath())
	})

	t.Run("falls back to per-user config", func(t *testing.T) {
		chdir(t, t.TempDir())
		home := t.TempDir()
		t.Setenv("HOME", home)

		assert.Equal(t,
			filepath.Join(home, ".config", "tickle-me-email", "config.yaml"),
			DefaultFilepath(),
		)
	})
}

func TestLoadFromUserConfigDir(t *testing.T) {
	chdir(t, t.TempDir())
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfgDir := filepath.Join(home, ".config", "tickle-me-email")
	require.NoError(t, os.MkdirAll(cfgDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte(`
imap:
  host: home.example.org
  username: alice
  password: hunter2
`), 0o600))

	cfg, err := Load(DefaultFilepath(), filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, "home.example.org", cfg.IMAP.Host)
	assert.NoError(t, cfg.RequireIMAP())
}

func TestMalformedFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "imap: [not a mapping")

	_, err := Load(path, filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestRequireIMAP(t *testing.T) {
	var cfg Config
	assert.Error(t, cfg.RequireIMAP())

	cfg.IMAP = Server{Host: "mail.example.org", Username: "alice", Password: "hunter2"}
	assert.NoError(t, cfg.RequireIMAP())
}

func TestRequireSMTP(t *testing.T) {
	var cfg Config
	assert.Error(t, cfg.RequireSMTP())

	cfg.SMTP = Server{Host: "smtp.example.org", Username: "alice", Password: "hunter2"}
	assert.NoError(t, cfg.RequireSMTP())
}
