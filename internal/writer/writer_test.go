package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode"

	"telescribe/internal/model"
)

func sampleRecord() model.ExportRecord {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	return model.ExportRecord{
		Conversation: model.Conversation{ID: 99, Name: "Team/Chat?? 2024", Kind: model.KindGroup},
		ExportedAt:   time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC),
		Messages: []model.Message{
			{ID: 30, Date: base.Add(2 * time.Hour), Text: "newest", ReplyTo: 20,
				From: &model.UserProfile{ID: 5, Username: "alice", FirstName: "Alice", LastName: "A"}},
			{ID: 20, Date: base.Add(time.Hour), Text: "middle", FromID: 6},
			{ID: 10, Date: base, Text: ""},
		},
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Team/Chat?? 2024": "Team_Chat__ 2024",
		"  padded  ":       "padded",
		"plain-name_1":     "plain-name_1",
		"émo🙂ji":           "émo_ji",
	}
	for in, want := range cases {
		got := SanitizeName(in)
		if got != want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
		for _, r := range got {
			if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_') {
				t.Fatalf("disallowed rune %q survived in %q", r, got)
			}
		}
	}
}

func TestFilenameDatePrefix(t *testing.T) {
	name := Filename(sampleRecord(), FormatJSON)
	if name != "20240311_Team_Chat__ 2024.json" {
		t.Fatalf("filename = %q", name)
	}
}

func TestWriteJSONKeepsFetchOrder(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(sampleRecord(), FormatJSON, dir)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		ChatName string `json:"chat_name"`
		ChatID   int64  `json:"chat_id"`
		Messages []struct {
			ID       int64           `json:"id"`
			Text     *string         `json:"text"`
			ReplyTo  *int64          `json:"reply_to"`
			FromUser json.RawMessage `json:"from_user"`
			FromID   *int64          `json:"from_id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.ChatName != "Team/Chat?? 2024" || doc.ChatID != 99 {
		t.Fatalf("header: %+v", doc)
	}
	if len(doc.Messages) != 3 {
		t.Fatalf("got %d messages", len(doc.Messages))
	}
	for i, want := range []int64{30, 20, 10} {
		if doc.Messages[i].ID != want {
			t.Fatalf("messages[%d].id = %d, want %d", i, doc.Messages[i].ID, want)
		}
	}
	// Sender is a nested profile or a bare id, never both.
	m0, m1, m2 := doc.Messages[0], doc.Messages[1], doc.Messages[2]
	if m0.FromUser == nil || m0.FromID != nil {
		t.Fatalf("resolved sender serialized wrong: %+v", m0)
	}
	if m1.FromUser != nil || m1.FromID == nil || *m1.FromID != 6 {
		t.Fatalf("raw sender serialized wrong: %+v", m1)
	}
	if m2.FromUser != nil || m2.FromID != nil {
		t.Fatalf("senderless message serialized wrong: %+v", m2)
	}
	if m2.Text != nil {
		t.Fatalf("empty body must serialize null, got %q", *m2.Text)
	}
	if m0.ReplyTo == nil || *m0.ReplyTo != 20 {
		t.Fatalf("reply_to lost: %+v", m0)
	}
}

func TestWriteMarkdownReversesOrder(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(sampleRecord(), FormatMarkdown, dir)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc := string(raw)

	if !strings.HasPrefix(doc, "# Team/Chat?? 2024\n\nExported on: ") {
		t.Fatalf("bad head: %q", doc[:60])
	}
	// Oldest first: 10, then 20, then 30.
	i10 := strings.Index(doc, "[ID: 10]")
	i20 := strings.Index(doc, "[ID: 20]")
	i30 := strings.Index(doc, "[ID: 30] - @alice (Alice A)")
	if i10 < 0 || i20 < 0 || i30 < 0 || !(i10 < i20 && i20 < i30) {
		t.Fatalf("order wrong: %d %d %d\n%s", i10, i20, i30, doc)
	}
	if !strings.Contains(doc, "[ID: 20] - User ID: 6") {
		t.Fatalf("unresolved sender line missing:\n%s", doc)
	}
	if !strings.Contains(doc, "*↪️ Reply to message [ID: 20]*") {
		t.Fatalf("reply annotation missing:\n%s", doc)
	}
	if got := strings.Count(doc, "\n---\n"); got != 3 {
		t.Fatalf("expected 3 rules, got %d", got)
	}
}

func TestWriteCreatesDestinationDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports", "nested")
	if _, err := Write(sampleRecord(), FormatJSON, dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatal(err)
	}
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	if _, err := Write(sampleRecord(), "xml", t.TempDir()); err == nil {
		t.Fatal("expected format error")
	}
}
