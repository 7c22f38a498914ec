package models

import "time"

// MessageStatus is the lifecycle position of a contact message
type MessageStatus string

// Message statuses
const (
	MessageStatusPending MessageStatus = "pending"
	MessageStatusRead    MessageStatus = "read"
	MessageStatusReplied MessageStatus = "replied"
)

// Valid reports whether s belongs to the message status domain.
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageStatusPending, MessageStatusRead, MessageStatusReplied:
		return true
	}
	return false
}

// Next returns the status reached by advancing from s.
func (s MessageStatus) Next() (MessageStatus, bool) {
	switch s {
	case MessageStatusPending:
		return MessageStatusRead, true
	case MessageStatusRead:
		return MessageStatusReplied, true
	}
	return "", false
}

// CanTransitionTo reports whether the workflow allows moving from s to next.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	n, ok := s.Next()
	return ok && n == next
}

// ContactMessage is an inquiry submitted through the public contact form
type ContactMessage struct {
	ID        string        `db:"id" json:"id"`
	Name      string        `db:"name" json:"name"`
	Email     string        `db:"email" json:"email"`
	Phone     string        `db:"phone" json:"phone"`
	Service   string        `db:"service" json:"service"`
	Message   string        `db:"message" json:"message"`
	Status    MessageStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

// ArchivedMessage is an immutable copy of a message moved to history
type ArchivedMessage struct {
	ContactMessage
	ArchivedAt time.Time `db:"archived_at" json:"archivedAt"`
}
