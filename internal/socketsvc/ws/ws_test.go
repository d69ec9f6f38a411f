package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/avvvet/electionday-services/internal/socketsvc/chat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const manageToken = "s3cret"

type fakeChats struct {
	mu    sync.Mutex
	chats map[string]*chat.Chat
}

func newFakeChats(chats ...*chat.Chat) *fakeChats {
	f := &fakeChats{chats: map[string]*chat.Chat{}}
	for _, c := range chats {
		f.chats[c.ID] = c
	}
	return f
}

func (f *fakeChats) get(schema, id string) (*chat.Chat, error) {
	c, ok := f.chats[id]
	if !ok || c.Schema != schema {
		return nil, chat.ErrNotFound
	}
	return c, nil
}

func (f *fakeChats) ByID(_ context.Context, schema, id string) (*chat.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(schema, id)
	if err != nil {
		return nil, err
	}
	clone := *c
	clone.History = append([]chat.HistoryEntry(nil), c.History...)
	return &clone, nil
}

func (f *fakeChats) AppendHistory(_ context.Context, schema, id string, entry chat.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(schema, id)
	if err != nil {
		return err
	}
	c.History = append(c.History, entry)
	return nil
}

func (f *fakeChats) Deactivate(_ context.Context, schema, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(schema, id)
	if err != nil {
		return err
	}
	c.Active = false
	return nil
}

func (f *fakeChats) SetUser(_ context.Context, schema, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.get(schema, id)
	if err != nil {
		return err
	}
	c.UserID = userID
	return nil
}

func (f *fakeChats) snapshot(id string) chat.Chat {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *f.chats[id]
	c.History = append([]chat.HistoryEntry(nil), c.History...)
	return c
}

type testHub struct {
	*Ws
	t          *testing.T
	srv        *httptest.Server
	mu         sync.Mutex
	identities map[string]Identity
}

func newTestHub(t *testing.T, chats ChatStore, metrics *Metrics) *testHub {
	t.Helper()
	h := &testHub{Ws: NewWs(manageToken, chats, metrics), t: t, identities: map[string]Identity{}}
	upgrader := websocket.Upgrader{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		identity := h.identities[r.URL.Query().Get("id")]
		h.mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Attach(conn, identity)
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *testHub) dial(identity Identity) *websocket.Conn {
	h.t.Helper()
	id := identity.UserID + identity.Role + identity.ActiveChatID
	h.mu.Lock()
	h.identities[id] = identity
	h.mu.Unlock()

	target := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/?id=" + url.QueryEscape(id)
	conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
	require.NoError(h.t, err)
	resp.Body.Close()
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func sendRaw(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func receive(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var r map[string]any
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

// inner decodes the JSON encoded message of a notification.
func inner(t *testing.T, r map[string]any) map[string]any {
	t.Helper()
	require.Equal(t, TypeNotification, r["type"])
	encoded, ok := r["message"].(string)
	require.True(t, ok, "message is %v", r["message"])
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(encoded), &m))
	return m
}

func acknowledged(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	assert.Equal(t, map[string]any{"type": TypeAcknowledged}, receive(t, conn))
}

func assertClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)
}

func manager(t *testing.T, h *testHub) *websocket.Conn {
	t.Helper()
	conn := h.dial(Identity{UserID: "manager"})
	send(t, conn, map[string]any{"type": "authenticate", "token": manageToken})
	acknowledged(t, conn)
	return conn
}

func listener(t *testing.T, h *testHub, identity Identity, schema string, channel any) *websocket.Conn {
	t.Helper()
	conn := h.dial(identity)
	msg := map[string]any{"type": "register", "schema": schema}
	if channel != nil {
		msg["channel"] = channel
	}
	send(t, conn, msg)
	acknowledged(t, conn)
	return conn
}

func TestErrorsCloseTheConnection(t *testing.T) {
	h := newTestHub(t, newFakeChats(), nil)

	for name, tc := range map[string]struct {
		message string
		want    string
	}{
		"unknown command":         {`{"type":"foo"}`, `invalid command: {"type":"foo"}`},
		"not json":                {`hello`, `invalid command: hello`},
		"empty token":             {`{"type":"authenticate"}`, "invalid token"},
		"wrong token":             {`{"type":"authenticate","token":"x"}`, "authentication failed"},
		"missing schema":          {`{"type":"register"}`, "invalid schema: null"},
		"invalid channel":         {`{"type":"register","schema":"zg","channel":5}`, "invalid channel: 5"},
		"customer empty schema":   {`{"type":"customer_chat","schema":""}`, "invalid schema: "},
		"customer missing schema": {`{"type":"customer_chat"}`, "invalid schema: null"},
		"staff other schema":      {`{"type":"staff_chat","schema":"be"}`, "invalid schema: be"},
	} {
		t.Run(name, func(t *testing.T) {
			conn := h.dial(Identity{UserID: name})
			sendRaw(t, conn, tc.message)
			assert.Equal(t, map[string]any{"type": TypeError, "message": tc.want}, receive(t, conn))
			assertClosed(t, conn)
		})
	}
}

func TestManageCommands(t *testing.T) {
	h := newTestHub(t, newFakeChats(), nil)

	for name, tc := range map[string]struct {
		command string
		want    string
	}{
		"unknown":         {`{"type":"register","schema":"zg"}`, `invalid command: {"type":"register","schema":"zg"}`},
		"missing message": {`{"type":"broadcast","schema":"zg"}`, "missing message"},
		"empty message":   {`{"type":"broadcast","schema":"zg","message":""}`, "missing message"},
		"invalid schema":  {`{"type":"broadcast","schema":1,"message":"x"}`, "invalid schema: 1"},
		"invalid channel": {`{"type":"broadcast","schema":"zg","channel":true,"message":"x"}`, "invalid channel: true"},
	} {
		t.Run(name, func(t *testing.T) {
			conn := manager(t, h)
			sendRaw(t, conn, tc.command)
			assert.Equal(t, map[string]any{"type": TypeError, "message": tc.want}, receive(t, conn))
			assertClosed(t, conn)
		})
	}
}

func TestBroadcast(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	h := newTestHub(t, newFakeChats(), metrics)

	anonymous := listener(t, h, Identity{UserID: "anonymous"}, "zg", nil)
	member := listener(t, h, Identity{UserID: "member", Role: "editor", GroupIDs: []string{"g1"}}, "zg", nil)
	admin := listener(t, h, Identity{UserID: "admin", Role: "admin"}, "zg", "")
	ticker := listener(t, h, Identity{UserID: "ticker"}, "zg", "ticker")
	m := manager(t, h)

	send(t, m, map[string]any{"type": "broadcast", "schema": "zg", "message": map[string]any{"text": "hello"}, "groupids": []string{"g1", "g2"}})
	acknowledged(t, m)
	want := map[string]any{"type": TypeNotification, "message": map[string]any{"text": "hello"}}
	assert.Equal(t, want, receive(t, member))
	assert.Equal(t, want, receive(t, admin))

	send(t, m, map[string]any{"type": "broadcast", "schema": "zg", "channel": "ticker", "message": "tick"})
	acknowledged(t, m)
	assert.Equal(t, map[string]any{"type": TypeNotification, "message": "tick"}, receive(t, ticker))

	// the filtered broadcast never reached the anonymous listener
	assert.Equal(t, 3, h.Notify("zg", "", "all"))
	assert.Equal(t, map[string]any{"type": TypeNotification, "message": "all"}, receive(t, anonymous))
	assert.Equal(t, 0, h.Notify("be", "", "nobody"))

	send(t, m, map[string]any{"type": "status"})
	acknowledged(t, m)
	assert.Equal(t, map[string]any{
		"type":    TypeStatus,
		"message": map[string]any{"connections": map[string]any{"zg": float64(3), "zg-ticker": float64(1)}},
	}, receive(t, m))

	assert.Equal(t, float64(6), testutil.ToFloat64(metrics.notifications))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.connections.WithLabelValues("register")))

	ticker.Close()
	require.Eventually(t, func() bool {
		_, ok := h.Status()["zg-ticker"]
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.connections.WithLabelValues("register")) == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestChat(t *testing.T) {
	chats := newFakeChats(
		&chat.Chat{ID: "c1", Schema: "zg", Topic: "Wahlen", Active: true},
		&chat.Chat{ID: "c2", Schema: "zg", Topic: "Wahlen"},
	)
	h := newTestHub(t, chats, nil)

	staff := h.dial(Identity{Schema: "zg", UserID: "s1", Role: "editor"})
	send(t, staff, map[string]any{"type": "staff_chat", "schema": "zg"})
	acknowledged(t, staff)
	other := h.dial(Identity{Schema: "zg", UserID: "s2", Role: "admin"})
	send(t, other, map[string]any{"type": "staff_chat", "schema": "zg"})
	acknowledged(t, other)

	customer := h.dial(Identity{Schema: "zg", UserID: "c", ActiveChatID: "c1"})
	send(t, customer, map[string]any{"type": "customer_chat", "schema": "zg"})
	acknowledged(t, customer)

	first := map[string]any{"type": "message", "userId": "c", "user": "<Anna>", "text": "Hallo", "time": "10:00"}
	send(t, customer, first)
	assert.Equal(t, first, inner(t, receive(t, customer)))

	request := map[string]any{"type": "request", "text": "Hallo", "userId": "c", "user": "<Anna>", "topic": "Wahlen", "channel": "c1"}
	assert.Equal(t, request, inner(t, receive(t, staff)))
	assert.Equal(t, request, inner(t, receive(t, other)))

	require.Eventually(t, func() bool { return len(chats.snapshot("c1").History) == 1 }, 5*time.Second, 10*time.Millisecond)
	send(t, staff, map[string]any{"type": "accepted", "channel": "c1", "userId": "s1"})
	assert.Equal(t, map[string]any{"type": "hide-request", "channel": "c1"}, inner(t, receive(t, other)))
	history := inner(t, receive(t, staff))
	assert.Equal(t, "chat-history", history["type"])
	assert.Equal(t, []any{map[string]any{"userId": "c", "user": "&lt;Anna&gt;", "text": "Hallo", "time": "10:00"}}, history["history"])
	require.Eventually(t, func() bool { return chats.snapshot("c1").UserID == "s1" }, 5*time.Second, 10*time.Millisecond)

	reply := map[string]any{"type": "message", "userId": "s1", "user": "Bea", "text": "Grüezi", "time": "10:01"}
	send(t, staff, reply)
	assert.Equal(t, reply, inner(t, receive(t, customer)))
	assert.Equal(t, reply, inner(t, receive(t, staff)))

	// an assigned chat does not ask the staff again
	send(t, customer, first)
	assert.Equal(t, first, inner(t, receive(t, customer)))
	assert.Equal(t, first, inner(t, receive(t, staff)))

	send(t, staff, map[string]any{"type": "end-chat", "channel": "c1"})
	assert.Equal(t, "end-chat", inner(t, receive(t, customer))["type"])
	require.Eventually(t, func() bool {
		c := chats.snapshot("c1")
		return !c.Active && len(c.History) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Grüezi", chats.snapshot("c1").History[1].Text)

	late := h.dial(Identity{Schema: "zg", UserID: "late", ActiveChatID: "c2"})
	send(t, late, map[string]any{"type": "customer_chat", "schema": "zg"})
	assert.Equal(t, map[string]any{"type": TypeError, "message": "invalid chat: c2"}, receive(t, late))
	assertClosed(t, late)

	member := h.dial(Identity{Schema: "zg", UserID: "m", Role: "member"})
	send(t, member, map[string]any{"type": "staff_chat", "schema": "zg"})
	acknowledged(t, member)
	assertClosed(t, member)
}

func TestClientSendAfterClose(t *testing.T) {
	c := newClient(nil, Identity{GroupIDs: []string{"g1"}})
	assert.True(t, c.Send([]byte("a")))
	c.Close()
	c.Close()
	assert.False(t, c.Send([]byte("b")))

	assert.True(t, c.inGroups([]string{"g2", "g1"}))
	assert.False(t, c.inGroups([]string{"g2"}))
	assert.False(t, c.inGroups(nil))
	assert.True(t, (&Client{identity: Identity{Role: "admin"}}).inGroups(nil))
}
