// Package bot provides the robot adapter for the Wire messenger.
//
// The adapter has three jobs:
//
//   - Session lifecycle: log in, follow the notification stream, log out
//   - Inbound translation: acknowledge Wire payloads and turn text payloads
//     into robot messages
//   - Outbound translation: turn robot Send and Reply calls into Wire text
//     payloads, quoting the original message on Reply
//
// # Usage
//
//	r := robot.New(robot.Options{Name: "wirebot"})
//	if err := r.LoadAdapter(bot.AdapterName, bot.Use(cfg.Wire, store)); err != nil {
//	    log.Fatal(err)
//	}
//	go r.Run(ctx)
//
// Payloads are handled on the account's stream goroutine one at a time.
// Send failures are logged and never returned to the robot.
package bot

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/keepmind9/wirebot/internal/config"
	"github.com/keepmind9/wirebot/internal/logger"
	"github.com/keepmind9/wirebot/internal/robot"
	"github.com/keepmind9/wirebot/internal/wire"
	"github.com/sirupsen/logrus"
)

// AdapterName is the name the Wire adapter is loaded under
const AdapterName = "wire"

// Client is the part of *wire.Account the adapter uses
type Client interface {
	On(payloadType wire.PayloadType, handler wire.Handler)
	Login(ctx context.Context, creds wire.Credentials) (*wire.LoginContext, error)
	Listen(ctx context.Context) error
	Logout(ctx context.Context) error
	Send(ctx context.Context, conversationID string, payload *wire.OutgoingPayload) (*wire.SentMessage, error)
	GetUser(ctx context.Context, userID string) (*wire.User, error)
	Disconnected() <-chan struct{}
}

// Host is the part of *robot.Robot the adapter uses
type Host interface {
	Brain() *robot.Brain
	Receive(msg robot.Message)
	Shutdown()
}

// ExtendedTextMessage is a text message translated from a Wire payload
type ExtendedTextMessage struct {
	*robot.TextMessage
	Payload *wire.Payload
}

// NewExtendedTextMessage wraps a text payload sent by user
func NewExtendedTextMessage(user *robot.User, text string, payload *wire.Payload) *ExtendedTextMessage {
	msg := robot.NewTextMessage(user, text, payload.ID)
	msg.Room = payload.ConversationID
	return &ExtendedTextMessage{TextMessage: msg, Payload: payload}
}

// WireBot implements robot.Adapter for the Wire messenger
type WireBot struct {
	host   Host
	client Client
	creds  wire.Credentials

	connected        chan struct{}
	connectedOnce    sync.Once
	disconnected     chan struct{}
	disconnectedOnce sync.Once
	closing          atomic.Bool
}

// NewWireBot creates the adapter. Missing credentials are reported before
// anything touches the network.
func NewWireBot(host Host, cfg config.WireConfig, client Client) (*WireBot, error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}

	clientType := wire.ClientType(cfg.ClientType)
	if clientType == "" {
		clientType = wire.ClientPermanent
	}

	return &WireBot{
		host:   host,
		client: client,
		creds: wire.Credentials{
			Email:      cfg.Email,
			Password:   cfg.Password,
			ClientType: clientType,
		},
		connected:    make(chan struct{}),
		disconnected: make(chan struct{}),
	}, nil
}

// Use returns a factory that connects a robot to Wire with a new account
func Use(cfg config.WireConfig, store wire.SessionStore) robot.AdapterFactory {
	return func(r *robot.Robot) (robot.Adapter, error) {
		restURL, wsURL := cfg.Endpoints()
		account := wire.NewAccount(wire.Options{
			RESTURL:      restURL,
			WebSocketURL: wsURL,
			Timeout:      cfg.Timeout(),
			Store:        store,
		})
		return NewWireBot(r, cfg, account)
	}
}

// dispatchTable maps every payload kind the adapter handles to its handler.
// Kinds not listed here are ignored.
var dispatchTable = map[wire.PayloadType]func(b *WireBot, ctx context.Context, payload *wire.Payload){
	wire.PayloadText:              (*WireBot).handleText,
	wire.PayloadConfirmation:      (*WireBot).handleConfirmation,
	wire.PayloadAsset:             (*WireBot).handleConfirmOnly,
	wire.PayloadAssetImage:        (*WireBot).handleConfirmOnly,
	wire.PayloadLocation:          (*WireBot).handleConfirmOnly,
	wire.PayloadPing:              (*WireBot).handleConfirmOnly,
	wire.PayloadConnectionRequest: (*WireBot).handleConnectionRequest,
}

// Run subscribes to the payload kinds, logs in and starts the notification
// stream. A failure leaves the adapter disconnected and is not retried.
func (b *WireBot) Run(ctx context.Context) error {
	for payloadType, handle := range dispatchTable {
		handle := handle
		b.client.On(payloadType, func(ctx context.Context, payload *wire.Payload) {
			handle(b, ctx, payload)
		})
	}

	logger.WithFields(logrus.Fields{
		"email":       b.creds.Email,
		"client_type": b.creds.ClientType,
	}).Info("starting-wire-adapter")

	login, err := b.client.Login(ctx, b.creds)
	if err != nil {
		logger.WithField("error", err).Error("wire-login-failed")
		return fmt.Errorf("wire login failed: %w", err)
	}

	if err := b.client.Listen(ctx); err != nil {
		logger.WithField("error", err).Error("wire-listen-failed")
		return fmt.Errorf("wire listen failed: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"user_id":   login.UserID,
		"client_id": login.ClientID,
	}).Info("wire-adapter-connected")

	b.connectedOnce.Do(func() { close(b.connected) })
	go b.watchStream(b.client.Disconnected())
	return nil
}

// Connected is closed once the notification stream is up
func (b *WireBot) Connected() <-chan struct{} {
	return b.connected
}

// Disconnected is closed once the notification stream is gone. The stream is
// not reopened.
func (b *WireBot) Disconnected() <-chan struct{} {
	return b.disconnected
}

func (b *WireBot) watchStream(done <-chan struct{}) {
	<-done
	if !b.closing.Load() {
		logger.Error("wire-notification-stream-lost")
	}
	b.disconnectedOnce.Do(func() { close(b.disconnected) })
}

// Close logs out and then shuts the robot down. A failed logout does not
// stop the shutdown.
func (b *WireBot) Close(ctx context.Context) error {
	logger.Info("stopping-wire-adapter")
	b.closing.Store(true)

	if err := b.client.Logout(ctx); err != nil {
		logger.WithField("error", err).Error("wire-logout-failed")
	}

	b.host.Shutdown()
	return nil
}

// Send posts each text to envelope.Room. Failures are logged.
func (b *WireBot) Send(envelope *robot.Envelope, texts ...string) {
	for _, text := range texts {
		b.send(context.Background(), envelope.Room, wire.CreateText(text).Build())
	}
}

// Reply posts each text quoting envelope.Message, which must be a message
// this adapter translated
func (b *WireBot) Reply(envelope *robot.Envelope, texts ...string) {
	original, ok := extendedMessage(envelope.Message)
	if !ok {
		logger.WithFields(logrus.Fields{
			"room":         envelope.Room,
			"message_type": fmt.Sprintf("%T", envelope.Message),
		}).Error("wire-reply-requires-wire-message")
		return
	}

	room := envelope.Room
	if room == "" {
		room = original.Payload.ConversationID
	}

	quote := wire.QuoteContent{
		QuotedMessageID:     original.ID,
		QuotedMessageSha256: QuoteHash(original.Text),
	}
	for _, text := range texts {
		b.send(context.Background(), room, wire.CreateText(text).WithQuote(quote).Build())
	}
}

// Emote is not supported by Wire
func (b *WireBot) Emote(envelope *robot.Envelope, texts ...string) {
	logger.WithField("room", envelope.Room).Warn("wire-emote-not-supported")
}

// Topic is not supported by Wire
func (b *WireBot) Topic(envelope *robot.Envelope, texts ...string) {
	logger.WithField("room", envelope.Room).Warn("wire-topic-not-supported")
}

// Play is not supported by Wire
func (b *WireBot) Play(envelope *robot.Envelope, texts ...string) {
	logger.WithField("room", envelope.Room).Warn("wire-play-not-supported")
}

// QuoteHash is the sha256 of the quoted message's text
func QuoteHash(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return sum[:]
}

func extendedMessage(msg robot.Message) (*ExtendedTextMessage, bool) {
	if catchAll, ok := msg.(*robot.CatchAllMessage); ok {
		msg = catchAll.Message
	}
	ext, ok := msg.(*ExtendedTextMessage)
	return ext, ok && ext != nil
}

func (b *WireBot) send(ctx context.Context, conversationID string, payload *wire.OutgoingPayload) {
	sent, err := b.client.Send(ctx, conversationID, payload)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"type":            payload.Type,
			"error":           err,
		}).Error("wire-send-failed")
		return
	}

	logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"type":            payload.Type,
		"message_id":      sent.ID,
	}).Debug("wire-payload-sent")
}

// handleText resolves the sender, confirms the message and hands it to the robot
func (b *WireBot) handleText(ctx context.Context, payload *wire.Payload) {
	content, ok := payload.Content.(wire.TextContent)
	if !ok {
		logger.WithField("message_id", payload.ID).Debug("wire-text-without-text-content-dropped")
		return
	}

	user := b.resolveUser(ctx, payload.From, payload.ConversationID)
	b.sendConfirmation(ctx, payload)

	logger.WithFields(logrus.Fields{
		"message_id":      payload.ID,
		"conversation_id": payload.ConversationID,
		"user_id":         user.ID,
		"content_len":     len(content.Text),
	}).Info("received-wire-text-message")

	b.host.Receive(NewExtendedTextMessage(user, content.Text, payload))
}

func (b *WireBot) handleConfirmation(ctx context.Context, payload *wire.Payload) {
	content, ok := payload.Content.(wire.ConfirmationContent)
	if !ok {
		return
	}

	logger.WithFields(logrus.Fields{
		"conversation_id": payload.ConversationID,
		"from":            payload.From,
		"type":            content.Type,
		"message_ids":     content.MessageIDs(),
	}).Info("wire-confirmation-received")
}

// handleConfirmOnly acknowledges payloads the robot has no message type for
func (b *WireBot) handleConfirmOnly(ctx context.Context, payload *wire.Payload) {
	if !contentMatches(payload) {
		logger.WithFields(logrus.Fields{
			"message_id": payload.ID,
			"type":       payload.Type,
		}).Debug("wire-mismatched-content-dropped")
		return
	}
	b.sendConfirmation(ctx, payload)
}

func (b *WireBot) handleConnectionRequest(ctx context.Context, payload *wire.Payload) {
	logger.WithFields(logrus.Fields{
		"conversation_id": payload.ConversationID,
		"from":            payload.From,
	}).Info("wire-connection-request-received")
}

func contentMatches(payload *wire.Payload) bool {
	switch payload.Content.(type) {
	case wire.AssetContent:
		return payload.Type == wire.PayloadAsset || payload.Type == wire.PayloadAssetImage
	case wire.LocationContent:
		return payload.Type == wire.PayloadLocation
	case wire.PingContent:
		return payload.Type == wire.PayloadPing
	}
	return false
}

func (b *WireBot) sendConfirmation(ctx context.Context, payload *wire.Payload) {
	b.send(ctx, payload.ConversationID, wire.CreateConfirmationRead(payload.ID))
}

// resolveUser returns the brain's user for id, looking it up in the Wire
// directory the first time. Known users are never refreshed. When the lookup
// fails a transient user is returned and nothing is stored, so the next
// message from id tries again.
func (b *WireBot) resolveUser(ctx context.Context, id, conversationID string) *robot.User {
	brain := b.host.Brain()
	if user, ok := brain.User(id); ok {
		return user
	}

	entry, err := b.client.GetUser(ctx, id)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"user_id": id,
			"error":   err,
		}).Error("wire-user-lookup-failed")
		return &robot.User{ID: id, Name: id, Room: conversationID}
	}

	return brain.UserForID(id, &robot.User{
		Name:  entry.Name,
		Alias: entry.Handle,
		Room:  conversationID,
	})
}
