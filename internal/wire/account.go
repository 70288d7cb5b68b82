package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/keepmind9/wirebot/internal/logger"
	"github.com/keepmind9/wirebot/pkg/constants"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotLoggedIn is returned by calls that need an access token
	ErrNotLoggedIn = errors.New("wire: not logged in")
	// ErrAlreadyListening is returned when Listen is called twice
	ErrAlreadyListening = errors.New("wire: already listening")
)

// APIError is a non-2xx answer from the backend
type APIError struct {
	Status  int    `json:"code"`
	Label   string `json:"label"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wire api error %d (%s): %s", e.Status, e.Label, e.Message)
}

// SessionStore persists the registered client id between runs
type SessionStore interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
}

// Options configures an Account
type Options struct {
	RESTURL      string
	WebSocketURL string
	Timeout      time.Duration
	HTTPClient   *http.Client      // Optional, defaults to a client with Timeout
	Dialer       *websocket.Dialer // Optional, defaults to websocket.DefaultDialer
	Store        SessionStore      // Optional, keeps permanent client ids
}

// Account is a logged-in Wire user with its notification stream
type Account struct {
	restURL    string
	wsURL      string
	timeout    time.Duration
	httpClient *http.Client
	dialer     *websocket.Dialer
	store      SessionStore

	mu          sync.RWMutex
	handlers    map[PayloadType][]Handler
	accessToken string
	login       *LoginContext
	conn        *websocket.Conn
	dialing     bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewAccount creates an account for the given backend
func NewAccount(opts Options) *Account {
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultRequestTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: constants.DefaultHandshakeTimeout,
		}
	}

	return &Account{
		restURL:    opts.RESTURL,
		wsURL:      opts.WebSocketURL,
		timeout:    opts.Timeout,
		httpClient: opts.HTTPClient,
		dialer:     opts.Dialer,
		store:      opts.Store,
		handlers:   make(map[PayloadType][]Handler),
	}
}

// On registers a handler for a payload type. Handlers should be registered
// before Listen so no event is missed.
func (a *Account) On(payloadType PayloadType, handler Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[payloadType] = append(a.handlers[payloadType], handler)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	User        string `json:"user"`
}

type clientRequest struct {
	Type     ClientType `json:"type"`
	Password string     `json:"password,omitempty"`
	Label    string     `json:"label"`
}

type clientResponse struct {
	ID string `json:"id"`
}

// Login authenticates and makes sure a client is registered for this device
func (a *Account) Login(ctx context.Context, creds Credentials) (*LoginContext, error) {
	if creds.ClientType == "" {
		creds.ClientType = ClientPermanent
	}

	var auth loginResponse
	if err := a.doJSON(ctx, http.MethodPost, "/login?persist=true", "",
		loginRequest{Email: creds.Email, Password: creds.Password}, &auth); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if auth.AccessToken == "" || auth.User == "" {
		return nil, fmt.Errorf("login failed: backend returned no access token")
	}

	clientID := a.storedClientID(ctx, auth.User, creds.ClientType)
	if clientID == "" {
		var client clientResponse
		if err := a.doJSON(ctx, http.MethodPost, "/clients", auth.AccessToken, clientRequest{
			Type:     creds.ClientType,
			Password: creds.Password,
			Label:    constants.DefaultRobotName,
		}, &client); err != nil {
			return nil, fmt.Errorf("client registration failed: %w", err)
		}
		clientID = client.ID
		a.storeClientID(ctx, auth.User, creds.ClientType, clientID)
	}

	login := &LoginContext{
		UserID:     auth.User,
		ClientID:   clientID,
		ClientType: creds.ClientType,
	}

	a.mu.Lock()
	a.accessToken = auth.AccessToken
	a.login = login
	a.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"user_id":      login.UserID,
		"client_id":    login.ClientID,
		"access_token": maskSecret(auth.AccessToken),
	}).Debug("wire-login-succeeded")

	return login, nil
}

func clientKey(userID string) string {
	return "client:" + userID
}

func (a *Account) storedClientID(ctx context.Context, userID string, clientType ClientType) string {
	if a.store == nil || clientType != ClientPermanent {
		return ""
	}
	value, err := a.store.Get(ctx, constants.StoreNamespace, clientKey(userID))
	if err != nil {
		return ""
	}
	return string(value)
}

func (a *Account) storeClientID(ctx context.Context, userID string, clientType ClientType, clientID string) {
	if a.store == nil || clientType != ClientPermanent || clientID == "" {
		return
	}
	if err := a.store.Put(ctx, constants.StoreNamespace, clientKey(userID), []byte(clientID)); err != nil {
		logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Warn("failed-to-persist-wire-client-id")
	}
}

// Listen opens the notification stream and dispatches payloads to the
// registered handlers until ctx is cancelled, Logout is called or the stream
// fails. It returns once the stream is open.
func (a *Account) Listen(ctx context.Context) error {
	a.mu.Lock()
	if a.accessToken == "" || a.login == nil {
		a.mu.Unlock()
		return ErrNotLoggedIn
	}
	if a.conn != nil || a.dialing {
		a.mu.Unlock()
		return ErrAlreadyListening
	}
	token := a.accessToken
	clientID := a.login.ClientID
	a.dialing = true
	a.mu.Unlock()

	streamURL := fmt.Sprintf("%s/await?client=%s", a.wsURL, url.QueryEscape(clientID))
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	// The handshake can take up to the dialer's timeout, so Send and
	// GetUser must not wait on it.
	conn, resp, err := a.dialer.DialContext(ctx, streamURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.dialing = false

	if err != nil {
		return fmt.Errorf("failed to open notification stream: %w", err)
	}
	if a.accessToken != token {
		// logged out while dialing
		conn.Close()
		return ErrNotLoggedIn
	}

	streamCtx, cancel := context.WithCancel(ctx)
	a.conn = conn
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.keepAlive(streamCtx, conn)
	go a.readLoop(streamCtx, conn, a.done)

	logger.WithField("client_id", clientID).Info("wire-notification-stream-opened")
	return nil
}

// Disconnected is closed when the current notification stream ends, whether
// it failed or Logout stopped it. It is nil before the first Listen.
func (a *Account) Disconnected() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done
}

// Listening reports whether the notification stream is open
func (a *Account) Listening() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conn != nil
}

func (a *Account) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(constants.WebSocketWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.WithField("error", err).Debug("wire-keepalive-ping-failed")
				return
			}
		}
	}
}

func (a *Account) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer a.resetStream(conn)

	// Unblock ReadMessage when the stream is cancelled
	go func() {
		<-ctx.Done()
		deadline := time.Now().Add(constants.WebSocketWriteWait)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.WithField("error", err).Error("wire-notification-stream-closed")
			}
			return
		}

		payloads, err := DecodeNotification(data)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"error": err,
				"size":  len(data),
			}).Warn("wire-notification-dropped")
			continue
		}

		for _, payload := range payloads {
			a.dispatch(ctx, payload)
		}
	}
}

func (a *Account) resetStream(conn *websocket.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == conn {
		a.conn = nil
		if a.cancel != nil {
			a.cancel()
			a.cancel = nil
		}
	}
}

// dispatch runs the handlers registered for the payload's type in order
func (a *Account) dispatch(ctx context.Context, payload *Payload) {
	a.mu.RLock()
	handlers := a.handlers[payload.Type]
	a.mu.RUnlock()

	if len(handlers) == 0 {
		logger.WithFields(logrus.Fields{
			"type": payload.Type,
			"id":   payload.ID,
		}).Debug("wire-payload-ignored")
		return
	}

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.WithFields(logrus.Fields{
						"type":  payload.Type,
						"id":    payload.ID,
						"panic": r,
					}).Error("wire-handler-panic-recovered")
				}
			}()
			handler(ctx, payload)
		}()
	}
}

// Logout closes the stream and invalidates the access token
func (a *Account) Logout(ctx context.Context) error {
	a.mu.Lock()
	token := a.accessToken
	cancel := a.cancel
	done := a.done
	a.accessToken = ""
	a.login = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if token == "" {
		return ErrNotLoggedIn
	}

	if err := a.doJSON(ctx, http.MethodPost, "/access/logout", token, nil, nil); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// Send posts a payload to a conversation
func (a *Account) Send(ctx context.Context, conversationID string, payload *OutgoingPayload) (*SentMessage, error) {
	token, err := a.token()
	if err != nil {
		return nil, err
	}

	var sent SentMessage
	path := fmt.Sprintf("/conversations/%s/messages", url.PathEscape(conversationID))
	if err := a.doJSON(ctx, http.MethodPost, path, token, payload, &sent); err != nil {
		return nil, fmt.Errorf("failed to send %s to conversation %s: %w", payload.Type, conversationID, err)
	}
	if sent.ID == "" {
		sent.ID = payload.ID
	}
	return &sent, nil
}

// GetUser looks up a user in the directory
func (a *Account) GetUser(ctx context.Context, userID string) (*User, error) {
	token, err := a.token()
	if err != nil {
		return nil, err
	}

	var user User
	if err := a.doJSON(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), token, nil, &user); err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	return &user, nil
}

func (a *Account) token() (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.accessToken == "" {
		return "", ErrNotLoggedIn
	}
	return a.accessToken, nil
}

// doJSON performs a REST call. in is encoded as the body when not nil, and
// the response is decoded into out when out is not nil.
func (a *Account) doJSON(ctx context.Context, method, path, token string, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.restURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); len(data) > 0 {
			json.Unmarshal(data, apiErr)
			apiErr.Status = resp.StatusCode
		}
		if apiErr.Label == "" {
			apiErr.Label = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
