package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/internal/metrics"
	"github.com/zde37/chordring/pkg"
	"github.com/zde37/chordring/pkg/hash"
)

var testSpace, _ = hash.NewSpace(8)

func testAddr(id hash.ID, port uint16) chord.NodeAddress {
	return chord.NewNodeAddress(id, netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port))
}

type fakeNode struct {
	snap     chord.Snapshot
	status   chord.JoinStatus
	shutdown bool
	lookup   func(hash.ID) (chord.NodeAddress, error)
	metrics  *metrics.Metrics
}

func newFakeNode() *fakeNode {
	self := testAddr(10, 8440)
	m := metrics.New(nil)
	m.SetJoined(true)
	return &fakeNode{
		snap: chord.Snapshot{
			Self:           self,
			Predecessor:    testAddr(200, 8442),
			HasPredecessor: true,
			Successors:     []chord.NodeAddress{testAddr(90, 8441), testAddr(200, 8442)},
			Fingers: []chord.FingerEntry{
				{Index: 0, Start: 11, Node: testAddr(90, 8441)},
				{Index: 1, Start: 12, Node: testAddr(90, 8441)},
			},
			Status: chord.StatusJoined,
		},
		status:  chord.StatusJoined,
		metrics: m,
		lookup: func(id hash.ID) (chord.NodeAddress, error) {
			if id > 10 && id <= 90 {
				return testAddr(90, 8441), nil
			}
			return testAddr(10, 8440), nil
		},
	}
}

func (f *fakeNode) ID() hash.ID               { return f.snap.Self.ID }
func (f *fakeNode) Space() hash.Space         { return testSpace }
func (f *fakeNode) Status() chord.JoinStatus  { return f.status }
func (f *fakeNode) IsShutdown() bool          { return f.shutdown }
func (f *fakeNode) Snapshot() chord.Snapshot  { return f.snap }
func (f *fakeNode) Metrics() *metrics.Metrics { return f.metrics }
func (f *fakeNode) FindSuccessor(_ context.Context, id hash.ID) (chord.NodeAddress, error) {
	return f.lookup(id)
}

func newTestServer(t *testing.T, node Node) *Server {
	t.Helper()
	s, err := NewServer(node, &Config{LookupTimeout: time.Second}, pkg.NewNop())
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, &Config{}, pkg.NewNop())
	assert.Error(t, err)

	_, err = NewServer(newFakeNode(), nil, pkg.NewNop())
	assert.Error(t, err)

	_, err = NewServer(newFakeNode(), &Config{}, nil)
	assert.Error(t, err)
}

func TestServer_Ring(t *testing.T) {
	s := newTestServer(t, newFakeNode())

	rec := get(t, s.Handler(), "/api/v1/ring")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var view RingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, NodeView{ID: "a", Address: "127.0.0.1:8440"}, view.Self)
	assert.Equal(t, "joined", view.Status)
	assert.Equal(t, 8, view.M)
	require.NotNil(t, view.Predecessor)
	assert.Equal(t, "c8", view.Predecessor.ID)
	require.Len(t, view.Successors, 2)
	assert.Equal(t, "5a", view.Successors[0].ID)
	require.Len(t, view.Fingers, 2)
	assert.Equal(t, "c", view.Fingers[1].Start)
}

func TestServer_RingWithoutPredecessor(t *testing.T) {
	node := newFakeNode()
	node.snap.HasPredecessor = false
	s := newTestServer(t, node)

	rec := get(t, s.Handler(), "/api/v1/ring")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"predecessor":null`)
}

func TestServer_Lookup(t *testing.T) {
	node := newFakeNode()
	s := newTestServer(t, node)

	tests := []struct {
		name string
		path string
		code int
		want string
	}{
		{name: "decimal", path: "/api/v1/lookup/60", code: http.StatusOK, want: "5a"},
		{name: "hex", path: "/api/v1/lookup/0x3c", code: http.StatusOK, want: "5a"},
		{name: "wraps to self", path: "/api/v1/lookup/200", code: http.StatusOK, want: "a"},
		{name: "not a number", path: "/api/v1/lookup/abc", code: http.StatusBadRequest},
		{name: "outside the space", path: "/api/v1/lookup/300", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s.Handler(), tt.path)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				return
			}

			var view LookupView
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
			assert.Equal(t, tt.want, view.Successor.ID)
		})
	}
}

func TestServer_LookupFailure(t *testing.T) {
	node := newFakeNode()
	node.lookup = func(hash.ID) (chord.NodeAddress, error) {
		return chord.NodeAddress{}, errors.Join(pkg.ErrRoutingExhausted, errors.New("too many hops"))
	}
	s := newTestServer(t, node)

	rec := get(t, s.Handler(), "/api/v1/lookup/5")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "routing exhausted")
}

func TestServer_Health(t *testing.T) {
	t.Run("joined", func(t *testing.T) {
		rec := get(t, newTestServer(t, newFakeNode()).Handler(), "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","node_id":"a"}`, rec.Body.String())
	})

	t.Run("joining", func(t *testing.T) {
		node := newFakeNode()
		node.status = chord.StatusJoining
		rec := get(t, newTestServer(t, node).Handler(), "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"joining","node_id":"a"}`, rec.Body.String())
	})

	t.Run("shut down", func(t *testing.T) {
		node := newFakeNode()
		node.shutdown = true
		rec := get(t, newTestServer(t, node).Handler(), "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestServer_Metrics(t *testing.T) {
	rec := get(t, newTestServer(t, newFakeNode()).Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chord_joined 1")
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, newFakeNode())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/ring", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_StartStop(t *testing.T) {
	s := newTestServer(t, newFakeNode())
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	require.NoError(t, s.Start(lis))

	resp, err := http.Get("http://" + lis.Addr().String() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestWebSocketHub_DeliversRingEvents(t *testing.T) {
	s := newTestServer(t, newFakeNode())
	hub := s.Hub()
	hub.Start()

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.BroadcastRingUpdate(chord.RingUpdateEvent{
		Type:      chord.EventSuccessorChanged,
		NodeID:    "a",
		PeerID:    "5a",
		Timestamp: 1700000000,
		Message:   "successor is now 5a",
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev chord.RingUpdateEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, chord.EventSuccessorChanged, ev.Type)
	assert.Equal(t, "5a", ev.PeerID)

	hub.Stop()
	assert.Equal(t, 0, hub.ClientCount())

	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "hub shutdown closes subscribers")
}

func TestWebSocketHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewWebSocketHub(pkg.NewNop())
	hub.Start()
	defer hub.Stop()

	assert.NoError(t, hub.BroadcastRingUpdate(map[string]string{"type": "node_join"}))
	assert.Error(t, hub.BroadcastRingUpdate(func() {}), "unencodable update")
	hub.Stop()
}
