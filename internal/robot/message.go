package robot

import (
	"fmt"
	"regexp"
)

// User is a chat participant known to the brain
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Alias string `json:"alias,omitempty"`
	Room  string `json:"room,omitempty"`
}

// Envelope addresses an outgoing message
type Envelope struct {
	Room    string
	User    *User
	Message Message
}

// Message is anything an adapter can feed into Receive
type Message interface {
	User() *User
	// Finish stops the message from reaching further listeners
	Finish()
	Finished() bool
}

// Textual is implemented by messages that carry text, including adapter
// types that embed *TextMessage.
type Textual interface {
	Message
	Textual() *TextMessage
}

// TextMessage is a plain text message
type TextMessage struct {
	user *User
	Text string
	ID   string
	Room string // Defaults to the user's room
	done bool
}

// NewTextMessage creates a text message from user
func NewTextMessage(user *User, text, id string) *TextMessage {
	m := &TextMessage{user: user, Text: text, ID: id}
	if user != nil {
		m.Room = user.Room
	}
	return m
}

func (m *TextMessage) User() *User           { return m.user }
func (m *TextMessage) Finish()               { m.done = true }
func (m *TextMessage) Finished() bool        { return m.done }
func (m *TextMessage) Textual() *TextMessage { return m }
func (m *TextMessage) String() string        { return m.Text }

// Match returns the submatches of re in the message text, or nil
func (m *TextMessage) Match(re *regexp.Regexp) []string {
	return re.FindStringSubmatch(m.Text)
}

// CatchAllMessage wraps a message no listener matched
type CatchAllMessage struct {
	Message Message
	done    bool
}

func (m *CatchAllMessage) User() *User    { return m.Message.User() }
func (m *CatchAllMessage) Finish()        { m.done = true }
func (m *CatchAllMessage) Finished() bool { return m.done }

func (m *CatchAllMessage) String() string {
	return fmt.Sprintf("catch-all(%v)", m.Message)
}
