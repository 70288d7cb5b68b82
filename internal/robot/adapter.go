package robot

import "context"

// Adapter connects the robot to a chat backend
type Adapter interface {
	// Run connects to the backend and starts delivering messages to the
	// robot. It returns once the connection is up or has failed.
	Run(ctx context.Context) error

	// Close disconnects from the backend and shuts the robot down
	Close(ctx context.Context) error

	// Send posts each string to envelope.Room
	Send(envelope *Envelope, texts ...string)

	// Reply posts each string as a reply to envelope.Message
	Reply(envelope *Envelope, texts ...string)

	// Emote, Topic and Play are optional backend features. Adapters that
	// lack them must accept the call without failing.
	Emote(envelope *Envelope, texts ...string)
	Topic(envelope *Envelope, texts ...string)
	Play(envelope *Envelope, texts ...string)
}

// AdapterFactory builds an adapter for a robot
type AdapterFactory func(r *Robot) (Adapter, error)

// ConnectionNotifier is implemented by adapters that signal when they are
// connected. The channel is closed once.
type ConnectionNotifier interface {
	Connected() <-chan struct{}
}

// DisconnectionNotifier is implemented by adapters that signal when a live
// connection is lost. The channel is closed once.
type DisconnectionNotifier interface {
	Disconnected() <-chan struct{}
}
