// Package engine implements the mutation sequencing on top of a selected
// IMAP session: atomic-in-effect moves, tickler rotation and batch folder
// creation.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/lamby/tickle-me-email/internal/app/session"
)

type Engine struct {
	mail   session.Client
	logger *slog.Logger
}

func New(mail session.Client, logger *slog.Logger) *Engine {
	return &Engine{mail: mail, logger: logger}
}

// MoveMessage transfers one message, addressed by UID, into target. The
// destination copy must succeed before the source is touched; a failed
// copy leaves the source exactly as it was.
func (e *Engine) MoveMessage(uid imap.UID, target string) error {
	if err := e.mail.Copy(uid, target); err != nil {
		return err
	}
	if err := e.mail.SetFlag(uid, imap.FlagDeleted, true); err != nil {
		return err
	}
	return e.mail.Expunge()
}

// Move transfers every message in src into dst and reports how many were
// moved. An empty source is a zero-count success. With unflagUnread set,
// each message additionally loses its \Seen flag so it surfaces as new at
// the destination.
func (e *Engine) Move(src, dst string, unflagUnread bool) (int, error) {
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
	// Each iteration expunges, which renumbers everything above the
	// removed position. Consuming the snapshot from the highest sequence
	// number down keeps every remaining reference valid.
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] > seqs[j] })

	moved := 0
	for _, seq := range seqs {
		uid, err := e.mail.ResolveUID(seq)
		if err != nil {
			return moved, err
		}
		if unflagUnread {
			if err := e.mail.SetFlag(uid, imap.FlagSeen, false); err != nil {
				return moved, err
			}
		}
		if err := e.MoveMessage(uid, dst); err != nil {
			return moved, err
		}
		moved++
	}

	e.logger.Info("mailbox moved",
		slog.String("src", src),
		slog.String("dst", dst),
		slog.Int("count", moved),
	)
	return moved, nil
}

// Rotate shifts messages through the numbered tiers derived from
// template. The oldest tier is drained into target first; only then is
// each remaining tier shifted down by one. Draining first is what keeps
// the terminal tier from being overwritten before it is consumed.
func (e *Engine) Rotate(template string, start, stop int, target string) error {
	if _, err := e.Move(RenderFolder(template, start), target, true); err != nil {
		return err
	}
	for x := start; x < stop; x++ {
		if _, err := e.Move(RenderFolder(template, x+1), RenderFolder(template, x), false); err != nil {
			return err
		}
	}
	return nil
}

// CreateFolders creates count sequentially numbered mailboxes starting at
// start. Creations are independent: a failure is recorded and the rest of
// the batch is still attempted, and nothing already created is rolled
// back.
func (e *Engine) CreateFolders(template string, start, count int) error {
	var errs error
	for i := 0; i < count; i++ {
		name := RenderFolder(template, start+i)
		if err := e.mail.Create(name); err != nil {
			e.logger.Error("folder creation failed",
				slog.String("folder", name),
				slog.String("error", err.Error()),
			)
			errs = errors.Join(errs, err)
			continue
		}
		e.logger.Info("folder created", slog.String("folder", name))
	}
	return errs
}

// RenderFolder substitutes n into a printf-style numeric template such as
// "DELAYED.%d" or "A.%02d". A template without a placeholder is returned
// as-is.
func RenderFolder(template string, n int) string {
	if !strings.Contains(template, "%") {
		return template
	}
	return fmt.Sprintf(template, n)
}
