// Package relay is the SMTP collaborator for deferred sends.
package relay

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/lamby/tickle-me-email/internal/app/config"
)

const dialTimeout = 30 * time.Second

// SMTP relays raw messages over one lazily-established, reused
// connection. Not safe for concurrent use; the tool is single-threaded.
type SMTP struct {
	cfg    config.Server
	logger *slog.Logger
	client *smtp.Client
}

func New(cfg config.Server, logger *slog.Logger) *SMTP {
	return &SMTP{cfg: cfg, logger: logger}
}

func (s *SMTP) connect() (*smtp.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsConfig := &tls.Config{ServerName: s.cfg.Host}

	var client *smtp.Client
	if s.cfg.STARTTLS {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("dial to %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("creating SMTP client: %w", err)
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP STARTTLS: %w", err)
		}
	} else {
		conn, err := tls.Dial("tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("TLS dial to %s: %w", addr, err)
		}
		client, err = smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("creating SMTP client: %w", err)
		}
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		client.Close()
		return nil, fmt.Errorf("SMTP auth: %w", err)
	}

	s.logger.Debug("smtp session established", slog.String("addr", addr))
	s.client = client
	return client, nil
}

// Send relays one raw message in a single MAIL/RCPT/DATA transaction.
func (s *SMTP) Send(from string, recipients []string, raw []byte) error {
	client, err := s.connect()
	if err != nil {
		return err
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("SMTP RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("writing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing message body: %w", err)
	}
	return nil
}

// Close quits the session once; teardown failures are swallowed.
func (s *SMTP) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Quit(); err != nil {
		s.logger.Debug("smtp quit failed", slog.String("error", err.Error()))
	}
	s.client = nil
}
