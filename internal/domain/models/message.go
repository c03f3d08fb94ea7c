// internal/domain/models/message.go
package models

import "time"

// Message types.
const (
	MessageTypeText         = "text"
	MessageTypeFile         = "file"
	MessageTypeImage        = "image"
	MessageTypeTask         = "task"
	MessageTypeNotification = "notification"
)

// MessageTypes is the full set of allowed message types.
var MessageTypes = []string{
	MessageTypeText,
	MessageTypeFile,
	MessageTypeImage,
	MessageTypeTask,
	MessageTypeNotification,
}

// Message is written once per send call and never mutated afterwards.
//
// Read is not stored on the message. Per-recipient read state lives in the
// user_messages collection and is projected onto Read when a recipient lists
// their messages.
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	From      string    `bson:"from" json:"from"`
	To        []string  `bson:"to" json:"to"`
	Content   string    `bson:"content" json:"content"`
	Type      string    `bson:"type" json:"type"`
	GroupID   string    `bson:"group_id,omitempty" json:"group_id,omitempty"`
	TaskID    string    `bson:"task_id,omitempty" json:"task_id,omitempty"`
	FileURL   string    `bson:"file_url,omitempty" json:"file_url,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`

	Read   bool       `bson:"-" json:"read"`
	ReadAt *time.Time `bson:"-" json:"read_at,omitempty"`
}

// MessagePayload is the caller-supplied body of a send request.
type MessagePayload struct {
	Content string `json:"content"`
	Type    string `json:"type"`
	FileURL string `json:"file_url,omitempty"`
}

// IsValidMessageType reports whether t is a known message type.
func IsValidMessageType(t string) bool {
	return contains(MessageTypes, t)
}

// UserMessage is the per-recipient link for a message. Exactly one exists per
// (message, recipient) pair that was part of the original recipient set.
// It is the unit of delivery and of read tracking.
type UserMessage struct {
	UserID    string     `bson:"user_id" json:"user_id"`
	MessageID string     `bson:"message_id" json:"message_id"`
	Read      bool       `bson:"read" json:"read"`
	ReadAt    *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
}

// MessageDeliveryResult is the outcome of a send. Success is true iff
// FailedTo is empty.
type MessageDeliveryResult struct {
	MessageID   string   `json:"message_id"`
	Success     bool     `json:"success"`
	DeliveredTo []string `json:"delivered_to"`
	FailedTo    []string `json:"failed_to"`
}
