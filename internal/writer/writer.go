package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"telescribe/internal/model"
)

const (
	FormatJSON     = "json"
	FormatMarkdown = "md"
)

// KnownFormat reports whether f names a supported output format.
func KnownFormat(f string) bool { return f == FormatJSON || f == FormatMarkdown }

// SanitizeName makes a chat name safe for filenames: every rune that is not
// a letter, digit, space, hyphen, or underscore becomes an underscore, then
// leading and trailing whitespace is trimmed.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.TrimSpace(b.String())
}

// Filename builds the export filename: {yyyymmdd}_{sanitized-name}.{ext}.
// A same-day re-export of the same conversation reuses the name and
// overwrites the earlier file.
func Filename(rec model.ExportRecord, format string) string {
	return fmt.Sprintf("%s_%s.%s", rec.ExportedAt.Format("20060102"), SanitizeName(rec.Conversation.Name), format)
}

// Write serializes rec into dir, creating the directory if absent, and
// returns the written file's path.
func Write(rec model.ExportRecord, format, dir string) (string, error) {
	if !KnownFormat(format) {
		return "", fmt.Errorf("unknown export format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, Filename(rec, format))
	var b []byte
	var err error
	if format == FormatJSON {
		b, err = renderJSON(rec)
	} else {
		b = []byte(renderMarkdown(rec))
	}
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type jsonUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type jsonMessage struct {
	ID       int64     `json:"id"`
	Date     string    `json:"date"`
	Text     *string   `json:"text"`
	ReplyTo  *int64    `json:"reply_to"`
	FromUser *jsonUser `json:"from_user,omitempty"`
	FromID   *int64    `json:"from_id,omitempty"`
}

type jsonDocument struct {
	ChatName   string        `json:"chat_name"`
	ChatID     int64         `json:"chat_id"`
	ExportDate string        `json:"export_date"`
	Messages   []jsonMessage `json:"messages"`
}

// renderJSON emits the message sequence verbatim in fetch order (newest
// first). The sender is a nested profile or a bare id, never both.
func renderJSON(rec model.ExportRecord) ([]byte, error) {
	doc := jsonDocument{
		ChatName:   rec.Conversation.Name,
		ChatID:     rec.Conversation.ID,
		ExportDate: rec.ExportedAt.Format(time.RFC3339),
		Messages:   make([]jsonMessage, 0, len(rec.Messages)),
	}
	for _, m := range rec.Messages {
		jm := jsonMessage{ID: m.ID, Date: m.Date.Format(time.RFC3339)}
		if m.Text != "" {
			t := m.Text
			jm.Text = &t
		}
		if m.ReplyTo != 0 {
			r := m.ReplyTo
			jm.ReplyTo = &r
		}
		switch {
		case m.From != nil:
			jm.FromUser = &jsonUser{ID: m.From.ID, Username: m.From.Username, FirstName: m.From.FirstName, LastName: m.From.LastName}
		case m.FromID != 0:
			id := m.FromID
			jm.FromID = &id
		}
		doc.Messages = append(doc.Messages, jm)
	}
	return json.MarshalIndent(doc, "", "  ")
}

// renderMarkdown emits one section per message in oldest-first order, the
// reverse of fetch order.
func renderMarkdown(rec model.ExportRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.Conversation.Name)
	fmt.Fprintf(&b, "Exported on: %s\n\n", rec.ExportedAt.Format(time.RFC3339))
	for i := len(rec.Messages) - 1; i >= 0; i-- {
		m := rec.Messages[i]
		header := fmt.Sprintf("### %s [ID: %d]", m.Date.Format("2006-01-02 15:04"), m.ID)
		switch {
		case m.From != nil:
			username := m.From.Username
			if username == "" {
				username = "No username"
			}
			name := strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
			if name == "" {
				name = "No name"
			}
			header += fmt.Sprintf(" - @%s (%s)", username, name)
		case m.FromID != 0:
			header += fmt.Sprintf(" - User ID: %d", m.FromID)
		}
		b.WriteString(header + "\n\n")
		if m.Text != "" {
			b.WriteString(m.Text + "\n\n")
		}
		if m.ReplyTo != 0 {
			fmt.Fprintf(&b, "*↪️ Reply to message [ID: %d]*\n\n", m.ReplyTo)
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}
