package wire

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "bot@example.com"
	testPassword = "secret"
	testToken    = "access-token-1"
)

// fakeBackend is a minimal Wire backend served by httptest
type fakeBackend struct {
	server *httptest.Server
	frames chan []byte
	drop   chan struct{}

	// when set, the stream handshake waits for awaitRelease
	awaitStarted chan struct{}
	awaitRelease chan struct{}

	mu            sync.Mutex
	registrations int
	logouts       int
	userLookups   int
	sent          []sentRecord
}

type sentRecord struct {
	ConversationID string
	Body           map[string]interface{}
}

var upgrader = websocket.Upgrader{}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{frames: make(chan []byte, 10), drop: make(chan struct{})}

	authorized := func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "Bearer "+testToken
	}
	writeJSON := func(w http.ResponseWriter, status int, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != testEmail || req.Password != testPassword {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{
				"code": 403, "label": "invalid-credentials", "message": "Authentication failed.",
			})
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{AccessToken: testToken, ExpiresIn: 900, User: "bot-user"})
	})
	mux.HandleFunc("POST /clients", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		b.registrations++
		b.mu.Unlock()
		writeJSON(w, http.StatusCreated, clientResponse{ID: "client-1"})
	})
	mux.HandleFunc("POST /access/logout", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.logouts++
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.userLookups++
		b.mu.Unlock()
		if r.PathValue("id") != "u1" {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"code": 404, "label": "not-found", "message": "User not found",
			})
			return
		}
		writeJSON(w, http.StatusOK, User{ID: "u1", Name: "Alice", Handle: "alice"})
	})
	mux.HandleFunc("POST /conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.sent = append(b.sent, sentRecord{ConversationID: r.PathValue("id"), Body: body})
		b.mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": body["id"], "time": time.Now().UTC()})
	})
	mux.HandleFunc("GET /await", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) || r.URL.Query().Get("client") != "client-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if b.awaitStarted != nil {
			close(b.awaitStarted)
			<-b.awaitRelease
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case frame := <-b.frames:
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			case <-closed:
				return
			case <-b.drop:
				return
			}
		}
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBackend) account(store SessionStore) *Account {
	return NewAccount(Options{
		RESTURL:      b.server.URL,
		WebSocketURL: "ws" + strings.TrimPrefix(b.server.URL, "http"),
		Timeout:      5 * time.Second,
		Store:        store,
	})
}

// memoryStore is an in-memory SessionStore
type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[namespace+"/"+key]
	if !ok {
		return nil, assert.AnError
	}
	return value, nil
}

func (m *memoryStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[namespace+"/"+key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, namespace+"/"+key)
	return nil
}

func testCredentials() Credentials {
	return Credentials{Email: testEmail, Password: testPassword, ClientType: ClientPermanent}
}

func TestAccount_Login_RegistersClient(t *testing.T) {
	backend := newFakeBackend(t)
	account := backend.account(nil)

	login, err := account.Login(context.Background(), testCredentials())
	require.NoError(t, err)

	assert.Equal(t, "bot-user", login.UserID)
	assert.Equal(t, "client-1", login.ClientID)
	assert.Equal(t, ClientPermanent, login.ClientType)
	assert.Equal(t, 1, backend.registrations)
}

func TestAccount_Login_ReusesStoredPermanentClient(t *testing.T) {
	backend := newFakeBackend(t)
	store := newMemoryStore()

	_, err := backend.account(store).Login(context.Background(), testCredentials())
	require.NoError(t, err)

	login, err := backend.account(store).Login(context.Background(), testCredentials())
	require.NoError(t, err)

	assert.Equal(t, "client-1", login.ClientID)
	assert.Equal(t, 1, backend.registrations, "second login should reuse the stored client")
}

func TestAccount_Login_TemporaryClientIsNotStored(t *testing.T) {
	backend := newFakeBackend(t)
	store := newMemoryStore()
	creds := testCredentials()
	creds.ClientType = ClientTemporary

	_, err := backend.account(store).Login(context.Background(), creds)
	require.NoError(t, err)
	_, err = backend.account(store).Login(context.Background(), creds)
	require.NoError(t, err)

	assert.Equal(t, 2, backend.registrations)
	assert.Empty(t, store.data)
}

func TestAccount_Login_InvalidCredentials(t *testing.T) {
	backend := newFakeBackend(t)
	creds := testCredentials()
	creds.Password = "wrong"

	_, err := backend.account(nil).Login(context.Background(), creds)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "invalid-credentials", apiErr.Label)
}

func TestAccount_RequiresLogin(t *testing.T) {
	backend := newFakeBackend(t)
	account := backend.account(nil)
	ctx := context.Background()

	_, err := account.Send(ctx, "c1", CreateText("hi").Build())
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = account.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	assert.ErrorIs(t, account.Listen(ctx), ErrNotLoggedIn)
	assert.ErrorIs(t, account.Logout(ctx), ErrNotLoggedIn)
}

func TestAccount_Send_PostsPayload(t *testing.T) {
	backend := newFakeBackend(t)
	account := backend.account(nil)
	ctx := context.Background()
	_, err := account.Login(ctx, testCredentials())
	require.NoError(t, err)

	payload := CreateText("pong").WithQuote(QuoteContent{
		QuotedMessageID:     "m1",
		QuotedMessageSha256: []byte{1, 2, 3},
	}).Build()

	sent, err := account.Send(ctx, "c1", payload)
	require.NoError(t, err)
	assert.Equal(t, payload.ID, sent.ID)

	require.Len(t, backend.sent, 1)
	record := backend.sent[0]
	assert.Equal(t, "c1", record.ConversationID)
	assert.Equal(t, "text", record.Body["type"])

	content := record.Body["content"].(map[string]interface{})
	assert.Equal(t, "pong", content["text"])
	quote := content["quote"].(map[string]interface{})
	assert.Equal(t, "m1", quote["quotedMessageId"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), quote["quotedMessageSha256"])
}

func TestAccount_GetUser(t *testing.T) {
	backend := newFakeBackend(t)
	account := backend.account(nil)
	ctx := context.Background()
	_, err := account.Login(ctx, testCredentials())
	require.NoError(t, err)

	user, err := account.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &User{ID: "u1", Name: "Alice", Handle: "alice"}, user)

	_, err = account.GetUser(ctx, "ghost")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestAccount_Listen_DispatchesPayloads(t *testing.T) {
	backend := newFakeBackend(t)
	account := backend.account(nil)
	ctx := context.Background()

	received := make(chan *Payload, 10)
	account.On(PayloadText, func(ctx context.Context, p *Payload) { received <- p })
	account.On(PayloadPing, func(ctx context.Context, p *Payload) { received <- p })

	_, err := account.Login(ctx, testCredentials())
	require.NoError(t, err)
	require.NoError(t, account.Listen(ctx))
	assert.True(t, account.Listening())
	assert.ErrorIs(t, account.Listen(ctx), ErrAlreadyListening)

	backend.frames <- []byte(`not json`)
	backend.frames <- []byte(`{"id":"n1","payload":[
		{"id":"x1","type":"knock-knock","conversation":"c1","from":"u1"},
		{"id":"m1","type":"text","conversation":"c1","from":"u1","content":{"text":"hi"}},
		{"id":"p1","type":"ping","conversation":"c1","from":"u1"}
	]}`)

	var got []*Payload
	for len(got) < 2 {
		select {
		case p := <-received:
			got = append(got, p)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for payloads, got %d", len(got))
		}
	}

	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, TextContent{Text: "hi"}, got[0].Content)
	assert.Equal(t, "p1", got[1].ID)
	assert.Equal(t, PingContent{}, got[1].Content)

	require.NoError(t, account.Logout(ctx))
	assert.False(t, account.Listening())
	assert.Equal(t, 1, backend.logouts)
}

func TestAccount_Listen_StreamDropClosesDisconnected(t *testing.T) {
	backend := newFakeBackend(t)
	account := backend.account(nil)
	ctx := context.Background()

	assert.Nil(t, account.Disconnected())

	_, err := account.Login(ctx, testCredentials())
	require.NoError(t, err)
	require.NoError(t, account.Listen(ctx))

	done := account.Disconnected()
	require.NotNil(t, done)

	close(backend.drop)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream end was not signalled")
	}
	assert.False(t, account.Listening())
}

func TestAccount_Logout_ClosesDisconnected(t *testing.T) {
	backend := newFakeBackend(t)
	account := backend.account(nil)
	ctx := context.Background()

	_, err := account.Login(ctx, testCredentials())
	require.NoError(t, err)
	require.NoError(t, account.Listen(ctx))
	done := account.Disconnected()

	require.NoError(t, account.Logout(ctx))
	select {
	case <-done:
	default:
		t.Fatal("logout should end the stream")
	}
}

func TestAccount_Listen_HandshakeDoesNotBlockAccount(t *testing.T) {
	backend := newFakeBackend(t)
	backend.awaitStarted = make(chan struct{})
	backend.awaitRelease = make(chan struct{})
	account := backend.account(nil)
	ctx := context.Background()

	_, err := account.Login(ctx, testCredentials())
	require.NoError(t, err)

	listened := make(chan error, 1)
	go func() { listened <- account.Listen(ctx) }()

	select {
	case <-backend.awaitStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("handshake never reached the backend")
	}

	// The handshake is stalled; the account must still answer.
	free := make(chan struct{})
	go func() {
		defer close(free)
		assert.False(t, account.Listening())
		assert.ErrorIs(t, account.Listen(ctx), ErrAlreadyListening)
		_, err := account.Send(ctx, "c1", CreateText("hi").Build())
		assert.NoError(t, err)
	}()
	select {
	case <-free:
	case <-time.After(5 * time.Second):
		t.Fatal("account blocked while the stream handshake was pending")
	}

	close(backend.awaitRelease)
	require.NoError(t, <-listened)
	assert.True(t, account.Listening())
	require.NoError(t, account.Logout(ctx))
}

func TestAccount_Dispatch_RecoversHandlerPanic(t *testing.T) {
	account := NewAccount(Options{})
	called := false
	account.On(PayloadText, func(ctx context.Context, p *Payload) { panic("boom") })
	account.On(PayloadText, func(ctx context.Context, p *Payload) { called = true })

	assert.NotPanics(t, func() {
		account.dispatch(context.Background(), &Payload{ID: "m1", Type: PayloadText})
	})
	assert.True(t, called, "a panicking handler must not stop the next one")
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Status: 403, Label: "invalid-credentials", Message: "Authentication failed."}
	assert.Equal(t, "wire api error 403 (invalid-credentials): Authentication failed.", err.Error())
}
