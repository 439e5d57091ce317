package model

import "time"

// Kind classifies a conversation by its platform type.
type Kind string

const (
	KindPrivate Kind = "private"
	KindGroup   Kind = "group"
	KindChannel Kind = "channel"
	KindUnknown Kind = "unknown"
)

// Conversation is one dialog as listed by the platform. Immutable once
// fetched; used only for selection and filenames.
type Conversation struct {
	ID           int64
	Name         string
	Kind         Kind
	LastActivity time.Time
}

// UserProfile is a resolved sender. Immutable once resolved.
type UserProfile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Message is one message as delivered by the platform iterator.
// ReplyTo and FromID are zero when the platform sent nothing. ReplyTo is a
// weak reference: it may point outside the fetched window, in which case the
// message is simply unlinked. From is non-nil only when sender resolution
// succeeded.
type Message struct {
	ID      int64
	Date    time.Time
	Text    string
	ReplyTo int64
	FromID  int64
	From    *UserProfile
}

// ExportRecord is the unit handed to the writer: one conversation plus its
// messages in exactly the order the platform delivered them (newest first)
// and the wall-clock time of the export.
type ExportRecord struct {
	Conversation Conversation
	Messages     []Message
	ExportedAt   time.Time
}
