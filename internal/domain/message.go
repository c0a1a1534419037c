package domain

import "errors"

// ErrContentTooLarge is returned by a message sink when the platform rejects
// an edit because the rendered content is over its size limit.
var ErrContentTooLarge = errors.New("message content too large")

// ErrNotFound is returned by stores when a message has no stored state.
var ErrNotFound = errors.New("not found")

// MessageRef identifies a delivered chat message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

func (r MessageRef) IsZero() bool {
	return r.MessageID == ""
}
