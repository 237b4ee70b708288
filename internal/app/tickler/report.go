package tickler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/olekukonko/tablewriter"
)

// SentHistory prints a per-day count of sent messages over the last
// `days` days, oldest day first.
func (a *App) SentHistory(days int) error {
	if days < 1 {
		return fmt.Errorf("days must be at least 1")
	}

	mailc, err := a.mail()
	if err != nil {
		return err
	}
	if _, err := mailc.Select(a.cfg.Folders.Sent); err != nil {
		return err
	}

	table := tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"Date", "Sent"})

	today := startOfDay(time.Now())
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		seqs, err := mailc.Search(&imap.SearchCriteria{
			Since:  day,
			Before: day.AddDate(0, 0, 1),
		})
		if err != nil {
			return err
		}
		table.Append([]string{day.Format("2006-01-02"), strconv.Itoa(len(seqs))})
	}

	table.Render()
	return nil
}

// PrintConfig renders the resolved configuration with secrets redacted.
// It never touches the network.
func (a *App) PrintConfig() error {
	table := tablewriter.NewWriter(a.out)
	table.SetHeader([]string{"Option", "Value"})

	rows := [][]string{
		{"log_level", a.cfg.LogLevel},
		{"imap.host", a.cfg.IMAP.Host},
		{"imap.port", strconv.Itoa(a.cfg.IMAP.Port)},
		{"imap.username", a.cfg.IMAP.Username},
		{"imap.password", redact(a.cfg.IMAP.Password)},
		{"imap.starttls", strconv.FormatBool(a.cfg.IMAP.STARTTLS)},
		{"smtp.host", a.cfg.SMTP.Host},
		{"smtp.port", strconv.Itoa(a.cfg.SMTP.Port)},
		{"smtp.username", a.cfg.SMTP.Username},
		{"smtp.password", redact(a.cfg.SMTP.Password)},
		{"smtp.starttls", strconv.FormatBool(a.cfg.SMTP.STARTTLS)},
		{"folders.todo", a.cfg.Folders.TODO},
		{"folders.drafts", a.cfg.Folders.Drafts},
		{"folders.sent", a.cfg.Folders.Sent},
		{"folders.send_later", a.cfg.Folders.SendLater},
	}
	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
	return nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return strings.Repeat("*", 8)
}
