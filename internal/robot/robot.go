// Package robot is a small chat-bot framework in the style of hubot.
//
// A Robot owns a Brain (its user registry), a list of listeners and exactly
// one Adapter. Adapters translate backend events into Messages and hand them
// to Receive. The robot's event loop runs every matching listener in
// registration order, and listeners answer through Response.Send and
// Response.Reply, which go back out through the adapter.
//
// # Lifecycle
//
//	r := robot.New(robot.Options{Name: "wirebot"})
//	r.Respond(regexp.MustCompile(`ping`), func(res *robot.Response) {
//	    res.Reply("PONG")
//	})
//	if err := r.LoadAdapter("wire", factory); err != nil { ... }
//	go r.Run(ctx)
//	...
//	r.Stop(ctx)
package robot

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/keepmind9/wirebot/internal/logger"
	"github.com/keepmind9/wirebot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Options configures a Robot
type Options struct {
	Name     string
	Alias    string
	Brain    *Brain // Defaults to a memory-only brain
	HTTPAddr  string // Address of the HTTP router, empty disables it
	HTTPToken string // Bearer token required by /wirebot/say, empty disables the check
}

// Robot is the central engine that routes adapter messages to listeners
type Robot struct {
	name      string
	alias     string
	brain     *Brain
	httpAddr  string
	httpToken string

	mu          sync.RWMutex
	adapter     Adapter
	adapterName string
	listeners   []*Listener
	catchAll    []*Listener

	messages  chan Message
	connected atomic.Bool
	startedAt time.Time
	router    *http.Server

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// New creates a robot
func New(opts Options) *Robot {
	if opts.Name == "" {
		opts.Name = constants.DefaultRobotName
	}
	if opts.Brain == nil {
		opts.Brain = NewBrain(nil)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Robot{
		name:      opts.Name,
		alias:     opts.Alias,
		brain:     opts.Brain,
		httpAddr:  opts.HTTPAddr,
		httpToken: opts.HTTPToken,
		messages:  make(chan Message, constants.MessageChannelBufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Name returns the name the robot answers to
func (r *Robot) Name() string { return r.name }

// Brain returns the robot's user registry
func (r *Robot) Brain() *Brain { return r.brain }

// Connected reports whether the adapter signalled a live connection
func (r *Robot) Connected() bool { return r.connected.Load() }

// Done is closed once the robot has shut down
func (r *Robot) Done() <-chan struct{} { return r.ctx.Done() }

// Adapter returns the loaded adapter, or nil
func (r *Robot) Adapter() Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapter
}

// LoadAdapter builds the robot's adapter with factory
func (r *Robot) LoadAdapter(name string, factory AdapterFactory) error {
	adapter, err := factory(r)
	if err != nil {
		return fmt.Errorf("failed to load adapter %s: %w", name, err)
	}

	r.mu.Lock()
	r.adapter = adapter
	r.adapterName = name
	r.mu.Unlock()

	logger.WithField("adapter", name).Info("adapter-loaded")
	return nil
}

// Hear registers a listener for any text matching re
func (r *Robot) Hear(re *regexp.Regexp, callback ListenerFunc) *Listener {
	return r.addListener(&Listener{ID: re.String(), match: textMatcher(re), callback: callback})
}

// Respond registers a listener for text addressed to the robot that matches re
func (r *Robot) Respond(re *regexp.Regexp, callback ListenerFunc) *Listener {
	pattern := respondPattern(r.name, r.alias, re)
	return r.addListener(&Listener{ID: pattern.String(), match: textMatcher(pattern), callback: callback})
}

// CatchAll registers a listener for messages no other listener matched
func (r *Robot) CatchAll(callback ListenerFunc) *Listener {
	l := &Listener{
		ID:       "catch-all",
		match:    func(Message) []string { return []string{} },
		callback: callback,
	}
	r.mu.Lock()
	r.catchAll = append(r.catchAll, l)
	r.mu.Unlock()
	return l
}

func (r *Robot) addListener(l *Listener) *Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
	return l
}

// HelpCommands lists the help lines of all described listeners
func (r *Robot) HelpCommands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var help []string
	for _, l := range r.listeners {
		if l.help != "" {
			help = append(help, l.help)
		}
	}
	sort.Strings(help)
	return help
}

// Run starts the adapter and processes messages until ctx is cancelled or
// the robot shuts down
func (r *Robot) Run(ctx context.Context) error {
	adapter := r.Adapter()
	if adapter == nil {
		return fmt.Errorf("no adapter loaded")
	}

	r.startedAt = time.Now()
	logger.WithFields(logrus.Fields{
		"name":    r.name,
		"adapter": r.adapterName,
	}).Info("robot-starting")

	if err := r.brain.Load(ctx); err != nil {
		logger.WithField("error", err).Warn("failed-to-load-brain-starting-empty")
	}

	if r.httpAddr != "" {
		go r.startRouter()
	}
	go r.autosave()

	if notifier, ok := adapter.(ConnectionNotifier); ok {
		var disconnected <-chan struct{}
		if d, ok := adapter.(DisconnectionNotifier); ok {
			disconnected = d.Disconnected()
		}
		go r.watchConnection(notifier.Connected(), disconnected)
	}

	go func() {
		defer func() {
			if p := recover(); p != nil {
				logger.WithFields(logrus.Fields{
					"adapter": r.adapterName,
					"panic":   p,
				}).Error("adapter-run-panic-recovered")
			}
		}()
		// Bootstrap errors are logged by the adapter, the robot stays up
		// without a connection.
		if err := adapter.Run(ctx); err != nil {
			logger.WithFields(logrus.Fields{
				"adapter": r.adapterName,
				"error":   err,
			}).Error("adapter-not-connected")
		}
	}()

	r.runEventLoop(ctx)
	return nil
}

// watchConnection follows the adapter's connection state. A nil
// disconnected channel means the adapter never reports a lost connection.
func (r *Robot) watchConnection(connected, disconnected <-chan struct{}) {
	select {
	case <-connected:
		r.connected.Store(true)
		logger.WithField("adapter", r.adapterName).Info("adapter-connected")
	case <-r.ctx.Done():
		return
	}

	select {
	case <-disconnected:
		r.connected.Store(false)
		logger.WithField("adapter", r.adapterName).Warn("adapter-disconnected")
	case <-r.ctx.Done():
	}
}

func (r *Robot) autosave() {
	ticker := time.NewTicker(constants.BrainSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if err := r.brain.Save(r.ctx); err != nil {
				logger.WithField("error", err).Error("brain-autosave-failed")
			}
		}
	}
}

// runEventLoop runs the main event loop for processing messages
func (r *Robot) runEventLoop(ctx context.Context) {
	logger.Info("robot-event-loop-started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("event-loop-shutting-down")
			return
		case <-r.ctx.Done():
			logger.Info("event-loop-shutting-down")
			return
		case msg := <-r.messages:
			r.processMessage(msg)
		}
	}
}

// Receive queues a message for the listeners. Messages received after
// shutdown are dropped.
func (r *Robot) Receive(msg Message) {
	select {
	case r.messages <- msg:
	case <-r.ctx.Done():
		logger.Debug("message-dropped-robot-shut-down")
	}
}

// processMessage runs the listeners that match msg, falling back to the
// catch-all listeners when none did
func (r *Robot) processMessage(msg Message) {
	r.mu.RLock()
	listeners := append([]*Listener(nil), r.listeners...)
	catchAll := append([]*Listener(nil), r.catchAll...)
	r.mu.RUnlock()

	matched := r.runListeners(listeners, msg)
	if !matched && len(catchAll) > 0 {
		if _, isCatchAll := msg.(*CatchAllMessage); !isCatchAll {
			r.runListeners(catchAll, &CatchAllMessage{Message: msg})
		}
	}
}

func (r *Robot) runListeners(listeners []*Listener, msg Message) bool {
	matched := false
	for _, l := range listeners {
		if msg.Finished() {
			break
		}
		match := l.match(msg)
		if match == nil {
			continue
		}
		matched = true
		r.callListener(l, newResponse(r, msg, match))
	}
	return matched
}

func (r *Robot) callListener(l *Listener, res *Response) {
	defer func() {
		if p := recover(); p != nil {
			logger.WithFields(logrus.Fields{
				"listener": l.ID,
				"panic":    p,
			}).Error("listener-panic-recovered")
		}
	}()
	l.callback(res)
}

// Send posts texts through the adapter
func (r *Robot) Send(envelope *Envelope, texts ...string) {
	if adapter := r.Adapter(); adapter != nil {
		adapter.Send(envelope, texts...)
	}
}

// Reply answers envelope.Message through the adapter
func (r *Robot) Reply(envelope *Envelope, texts ...string) {
	if adapter := r.Adapter(); adapter != nil {
		adapter.Reply(envelope, texts...)
	}
}

// MessageRoom posts texts to a room without a triggering message
func (r *Robot) MessageRoom(room string, texts ...string) {
	r.Send(&Envelope{Room: room}, texts...)
}

// Stop closes the adapter (which logs out of the backend) and shuts down
func (r *Robot) Stop(ctx context.Context) error {
	logger.Info("stopping-robot")

	var err error
	if adapter := r.Adapter(); adapter != nil {
		if err = adapter.Close(ctx); err != nil {
			logger.WithField("error", err).Error("failed-to-close-adapter")
		}
	}

	r.Shutdown()
	return err
}

// Shutdown stops the event loop and the HTTP router and saves the brain.
// It is safe to call more than once.
func (r *Robot) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.cancel()
		r.connected.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		r.mu.RLock()
		router := r.router
		r.mu.RUnlock()
		if router != nil {
			if err := router.Shutdown(ctx); err != nil {
				logger.Errorf("failed-to-gracefully-stop-router: %v", err)
				router.Close()
			}
		}

		if err := r.brain.Save(ctx); err != nil {
			logger.WithField("error", err).Error("failed-to-save-brain")
		}

		logger.Info("robot-stopped")
	})
}

// String is used in logs
func (r *Robot) String() string {
	return strings.TrimSpace(fmt.Sprintf("%s (%s)", r.name, r.adapterName))
}
