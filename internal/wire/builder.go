package wire

import (
	"time"

	"github.com/google/uuid"
)

// OutgoingPayload is a message ready to be sent to a conversation
type OutgoingPayload struct {
	ID      string      `json:"id"`
	Type    PayloadType `json:"type"`
	Time    time.Time   `json:"time"`
	Content Content     `json:"content"`
}

// TextBuilder builds a text payload
type TextBuilder struct {
	content TextContent
}

// CreateText starts a text payload
func CreateText(text string) *TextBuilder {
	return &TextBuilder{content: TextContent{Text: text}}
}

// WithQuote makes the text a reply to an earlier message
func (b *TextBuilder) WithQuote(quote QuoteContent) *TextBuilder {
	b.content.Quote = &quote
	return b
}

// Build returns the payload with a fresh message id
func (b *TextBuilder) Build() *OutgoingPayload {
	return &OutgoingPayload{
		ID:      uuid.NewString(),
		Type:    PayloadText,
		Time:    time.Now().UTC(),
		Content: b.content,
	}
}

// CreateConfirmationRead builds a read receipt for the given message ids
func CreateConfirmationRead(firstMessageID string, moreMessageIDs ...string) *OutgoingPayload {
	return &OutgoingPayload{
		ID:   uuid.NewString(),
		Type: PayloadConfirmation,
		Time: time.Now().UTC(),
		Content: ConfirmationContent{
			Type:           ConfirmationRead,
			FirstMessageID: firstMessageID,
			MoreMessageIDs: moreMessageIDs,
		},
	}
}
