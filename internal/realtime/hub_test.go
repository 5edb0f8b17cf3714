package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/telemetry"
)

// tokenAuthn maps tokens directly to principals.
type tokenAuthn map[string]*model.Principal

func (a tokenAuthn) ValidateBearer(_ context.Context, token string) (*model.Principal, error) {
	if p, ok := a[token]; ok {
		return p, nil
	}
	return nil, errors.New("invalid token")
}

var testAuthn = tokenAuthn{
	"alice": {ID: "u-alice", Email: "alice@example.com", Role: "user", Type: model.PrincipalUser},
	"bob":   {ID: "u-bob", Email: "bob@example.com", Role: "user", Type: model.PrincipalUser},
	"root":  {ID: "a-root", Email: "root@example.com", Role: model.AdminRoleSuper, Type: model.PrincipalAdmin},
}

func newTestHub(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hub := New(testAuthn, opts)
	ts := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return hub, ts
}

func wsURL(t *testing.T, base, token string) string {
	t.Helper()
	u, err := url.Parse(base)
	require.NoError(t, err)
	u.Scheme = "ws"
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

func dial(t *testing.T, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(t, ts.URL, token), nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readOutbound(t *testing.T, conn *websocket.Conn) Outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var out Outbound
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func send(t *testing.T, conn *websocket.Conn, in Inbound) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(in))
}

func TestRejectsMissingAndInvalidToken(t *testing.T) {
	_, ts := newTestHub(t, Options{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(t, ts.URL, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(t, ts.URL, "nobody"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerHeaderAccepted(t *testing.T) {
	hub, ts := newTestHub(t, Options{})

	header := http.Header{"Authorization": {"Bearer alice"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(t, ts.URL, ""), header)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	assert.Eventually(t, func() bool { return hub.RoomSize(UserRoom("u-alice")) == 1 }, time.Second, 5*time.Millisecond)
}

func TestAutoJoinRooms(t *testing.T) {
	metrics := telemetry.New()
	hub, ts := newTestHub(t, Options{Metrics: metrics})

	dial(t, ts, "alice")
	dial(t, ts, "root")

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.RoomSize(UserRoom("u-alice")))
	assert.Equal(t, 1, hub.RoomSize(AdminRoom("a-root")))
	assert.Equal(t, 1, hub.RoomSize(RoomAdmins))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.RealtimeConnections))
}

func TestPublishReachesOnlyRoomMembers(t *testing.T) {
	hub, ts := newTestHub(t, Options{})

	alice := dial(t, ts, "alice")
	bob := dial(t, ts, "bob")
	root := dial(t, ts, "root")
	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, time.Second, 5*time.Millisecond)

	hub.Publish(RoomAdmins, "user:created", map[string]string{"id": "u-carol"})
	hub.Publish(UserRoom("u-alice"), "user:updated", map[string]string{"id": "u-alice"})

	got := readOutbound(t, root)
	assert.Equal(t, "user:created", got.Event)
	assert.Equal(t, RoomAdmins, got.Room)

	got = readOutbound(t, alice)
	assert.Equal(t, "user:updated", got.Event)

	// Bob is in neither room.
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err)
}

func TestJoinAndLeavePublicRoom(t *testing.T) {
	hub, ts := newTestHub(t, Options{})
	conn := dial(t, ts, "alice")

	send(t, conn, Inbound{Event: EventJoin, ID: "1", Room: "announcements"})
	ack := readOutbound(t, conn)
	assert.Equal(t, EventJoined, ack.Event)
	assert.Equal(t, "1", ack.ID)
	assert.Equal(t, 1, hub.RoomSize("announcements"))

	hub.Publish("announcements", "notice", "hello")
	msg := readOutbound(t, conn)
	assert.Equal(t, "notice", msg.Event)
	assert.Equal(t, "hello", msg.Data)

	send(t, conn, Inbound{Event: EventLeave, Room: "announcements"})
	assert.Equal(t, EventLeft, readOutbound(t, conn).Event)
	assert.Equal(t, 0, hub.RoomSize("announcements"))
}

func TestCannotJoinPrivateRooms(t *testing.T) {
	hub, ts := newTestHub(t, Options{})
	conn := dial(t, ts, "alice")

	for _, room := range []string{RoomAdmins, UserRoom("u-bob"), AdminRoom("a-root"), ""} {
		send(t, conn, Inbound{Event: EventJoin, Room: room})
		got := readOutbound(t, conn)
		assert.Equal(t, EventError, got.Event, "room %q", room)
	}
	assert.Equal(t, 0, hub.RoomSize(RoomAdmins))
	assert.Equal(t, 0, hub.RoomSize(UserRoom("u-bob")))
}

func TestRequestHandlers(t *testing.T) {
	hub, ts := newTestHub(t, Options{})
	hub.On("whoami", func(_ context.Context, c *Client, _ json.RawMessage) (any, error) {
		return c.Principal().ID, nil
	})
	hub.On("fail", func(context.Context, *Client, json.RawMessage) (any, error) {
		return nil, errors.New("nope")
	})
	conn := dial(t, ts, "alice")

	send(t, conn, Inbound{Event: "whoami", ID: "a"})
	got := readOutbound(t, conn)
	assert.Equal(t, "whoami", got.Event)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, "u-alice", got.Data)

	send(t, conn, Inbound{Event: "fail", ID: "b"})
	got = readOutbound(t, conn)
	assert.Equal(t, "nope", got.Error)

	send(t, conn, Inbound{Event: "missing", ID: "c"})
	got = readOutbound(t, conn)
	assert.Equal(t, EventError, got.Event)
	assert.True(t, strings.Contains(got.Error, "missing"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, EventError, readOutbound(t, conn).Event)
}

func TestDisconnectLeavesRooms(t *testing.T) {
	metrics := telemetry.New()
	hub, ts := newTestHub(t, Options{Metrics: metrics})
	conn := dial(t, ts, "root")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.RoomSize(RoomAdmins))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.RealtimeConnections))
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := New(testAuthn, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), SendBuffer: 1})
	c := &Client{
		id:        "slow",
		principal: testAuthn["bob"],
		hub:       hub,
		send:      make(chan []byte, 1),
		done:      make(chan struct{}),
		rooms:     make(map[string]struct{}),
	}
	// A server-side pipe stands in for a peer that never reads.
	server, client := newConnPair(t)
	defer client.Close()
	c.conn = server
	require.True(t, hub.register(c))

	hub.Publish(UserRoom("u-bob"), "one", nil)
	hub.Publish(UserRoom("u-bob"), "two", nil)

	assert.Equal(t, 0, hub.ClientCount())
	assert.Equal(t, 0, hub.RoomSize(UserRoom("u-bob")))
}

func TestCloseDisconnectsAndRejects(t *testing.T) {
	hub, ts := newTestHub(t, Options{})
	conn := dial(t, ts, "alice")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(t, ts.URL, "alice"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// newConnPair returns both ends of a real websocket connection.
func newConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(ts.Close)

	client, resp, err := websocket.DefaultDialer.Dial(wsURL(t, ts.URL, ""), nil)
	require.NoError(t, err)
	resp.Body.Close()
	select {
	case server := <-accepted:
		return server, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side of websocket pair never accepted")
	}
	return nil, nil
}
