// Package wire is a client for the Wire messenger backend.
//
// It covers what a bot needs: logging in with email and password,
// registering a client, following the notification stream over a websocket,
// sending text and confirmation payloads, looking up users and logging out.
// Payloads travel as JSON. Encryption of message content is not handled
// here.
//
// Incoming events are delivered as *Payload values to handlers registered
// per PayloadType with Account.On. The Content of a payload is one of the
// concrete content types in this file, or nil when the event body did not
// match its declared type.
package wire

import (
	"context"
	"time"
)

// PayloadType is the declared kind of a payload bundle
type PayloadType string

const (
	PayloadText              PayloadType = "text"
	PayloadConfirmation      PayloadType = "confirmation"
	PayloadAsset             PayloadType = "asset"
	PayloadAssetImage        PayloadType = "asset-image"
	PayloadLocation          PayloadType = "location"
	PayloadPing              PayloadType = "ping"
	PayloadConnectionRequest PayloadType = "connection-request"
)

// ConfirmationType distinguishes delivery receipts from read receipts
type ConfirmationType string

const (
	ConfirmationDelivered ConfirmationType = "delivered"
	ConfirmationRead      ConfirmationType = "read"
)

// ClientType is the lifetime of a registered device
type ClientType string

const (
	ClientPermanent ClientType = "permanent"
	ClientTemporary ClientType = "temporary"
)

// Payload is a single event taken from the notification stream
type Payload struct {
	ID             string
	Type           PayloadType
	ConversationID string
	From           string
	Time           time.Time
	Content        Content
}

// Handler processes one payload. Handlers run on the stream's read goroutine.
type Handler func(ctx context.Context, payload *Payload)

// Content is the body of a payload. The set of implementations is closed.
type Content interface {
	isContent()
}

// TextContent is the body of a text message
type TextContent struct {
	Text  string        `json:"text"`
	Quote *QuoteContent `json:"quote,omitempty"`
}

// QuoteContent references an earlier message and a sha256 of its text
type QuoteContent struct {
	QuotedMessageID     string `json:"quotedMessageId"`
	QuotedMessageSha256 []byte `json:"quotedMessageSha256"`
}

// ConfirmationContent acknowledges one or more earlier messages
type ConfirmationContent struct {
	Type           ConfirmationType `json:"type"`
	FirstMessageID string           `json:"firstMessageId"`
	MoreMessageIDs []string         `json:"moreMessageIds,omitempty"`
}

// MessageIDs returns the first id followed by any additional ids
func (c ConfirmationContent) MessageIDs() []string {
	return append([]string{c.FirstMessageID}, c.MoreMessageIDs...)
}

// AssetContent describes a file or image asset
type AssetContent struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Width    int64  `json:"width,omitempty"`
	Height   int64  `json:"height,omitempty"`
}

// LocationContent is a shared map location
type LocationContent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Zoom      int64   `json:"zoom,omitempty"`
}

// PingContent is a ping ("knock") with no body
type PingContent struct{}

// ConnectionRequestContent is an incoming request to connect
type ConnectionRequestContent struct {
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

func (TextContent) isContent()              {}
func (ConfirmationContent) isContent()      {}
func (AssetContent) isContent()             {}
func (LocationContent) isContent()          {}
func (PingContent) isContent()              {}
func (ConnectionRequestContent) isContent() {}

// Credentials are used to log in
type Credentials struct {
	Email      string
	Password   string
	ClientType ClientType
}

// LoginContext describes an established session
type LoginContext struct {
	UserID     string
	ClientID   string
	ClientType ClientType
}

// User is a directory entry
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

// SentMessage is the backend's acknowledgement of a send
type SentMessage struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
}
