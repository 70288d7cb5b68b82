package robot

import (
	"fmt"
	"regexp"
	"strings"
)

// ListenerFunc is called when a listener matches
type ListenerFunc func(res *Response)

// matcher returns the match groups for msg, or nil when it does not match
type matcher func(msg Message) []string

// Listener pairs a matcher with a callback
type Listener struct {
	ID       string
	help     string
	match    matcher
	callback ListenerFunc
}

// Describe sets the line shown for this listener by HelpCommands
func (l *Listener) Describe(help string) *Listener {
	l.help = help
	return l
}

// Response is handed to listener callbacks
type Response struct {
	Robot    *Robot
	Message  Message
	Match    []string
	Envelope *Envelope
}

func newResponse(r *Robot, msg Message, match []string) *Response {
	return &Response{
		Robot:    r,
		Message:  msg,
		Match:    match,
		Envelope: &Envelope{Room: messageRoom(msg), User: msg.User(), Message: msg},
	}
}

// messageRoom is the room a message arrived in
func messageRoom(msg Message) string {
	switch m := msg.(type) {
	case *CatchAllMessage:
		return messageRoom(m.Message)
	case Textual:
		return m.Textual().Room
	}
	if user := msg.User(); user != nil {
		return user.Room
	}
	return ""
}

// Send posts to the room the message came from
func (res *Response) Send(texts ...string) {
	res.Robot.Send(res.Envelope, texts...)
}

// Reply answers the message that triggered the listener
func (res *Response) Reply(texts ...string) {
	res.Robot.Reply(res.Envelope, texts...)
}

// Emote sends an emote through the adapter
func (res *Response) Emote(texts ...string) {
	if a := res.Robot.Adapter(); a != nil {
		a.Emote(res.Envelope, texts...)
	}
}

// Topic sets the room topic through the adapter
func (res *Response) Topic(texts ...string) {
	if a := res.Robot.Adapter(); a != nil {
		a.Topic(res.Envelope, texts...)
	}
}

// Play plays a sound through the adapter
func (res *Response) Play(texts ...string) {
	if a := res.Robot.Adapter(); a != nil {
		a.Play(res.Envelope, texts...)
	}
}

// Finish stops further listeners from seeing the message
func (res *Response) Finish() {
	res.Message.Finish()
}

func textMatcher(re *regexp.Regexp) matcher {
	return func(msg Message) []string {
		text, ok := msg.(Textual)
		if !ok {
			return nil
		}
		return text.Textual().Match(re)
	}
}

// respondPattern prefixes re so it only matches when the robot is addressed
// by name or alias. With name "wirebot" and alias "!", both "@wirebot: ping"
// and "!ping" are addressed.
func respondPattern(name, alias string, re *regexp.Regexp) *regexp.Regexp {
	names := []string{regexp.QuoteMeta(name) + `[:,]?`}
	if alias != "" {
		names = append(names, regexp.QuoteMeta(alias)+`[:,]?`)
	}
	pattern := strings.TrimPrefix(re.String(), "^")
	return regexp.MustCompile(fmt.Sprintf(`^\s*@?(?i:%s)\s*(?:%s)`, strings.Join(names, "|"), pattern))
}
