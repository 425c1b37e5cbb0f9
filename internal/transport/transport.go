// Package transport abstracts the chat platform the bot talks through. The
// conversation engine only ever sees Events coming in and a Messenger going
// out, so engine tests run against fakes.
package transport

import "context"

// Event is one inbound user interaction, normalized across commands, plain
// text, and photo uploads. Exactly one of Command, Text, or Photo is set.
type Event struct {
	ChatID   int64
	Username string

	// Command is the slash command including the slash, e.g. "/start".
	Command string
	Text    string

	// Photo is the downloaded image payload of a photo message.
	Photo   []byte
	Caption string
	// FileID is the platform identifier of the uploaded photo.
	FileID string
}

// Messenger sends replies back to a chat.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	// SendOptions sends text together with a tap-to-answer keyboard; each
	// inner slice is one keyboard row.
	SendOptions(ctx context.Context, chatID int64, text string, options [][]string) error
	SendPhoto(ctx context.Context, chatID int64, image []byte, caption string) error
	// RemoveOptions sends text and clears any keyboard shown earlier.
	RemoveOptions(ctx context.Context, chatID int64, text string) error
}

// Handler consumes inbound events.
type Handler func(ctx context.Context, ev Event)
