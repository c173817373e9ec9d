package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(cfg Config) (*Hub, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	return NewHub(cfg, m, zerolog.Nop()), m
}

func newTestClient(h *Hub, id string, admin bool) *Client {
	c := NewClient(id, "user-"+id, admin, nil, h, zerolog.Nop())
	h.Register(c)
	return c
}

func drain(c *Client) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return out
			}
			var msg map[string]interface{}
			if err := json.Unmarshal(data, &msg); err == nil {
				out = append(out, msg)
			}
		default:
			return out
		}
	}
}

func types(msgs []map[string]interface{}) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i], _ = m["type"].(string)
	}
	return out
}

type fakeRelay struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRelay) Publish(ctx context.Context, topic string, payload []byte, once bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("%s:%v", topic, once))
	return nil
}

func TestPublishReachesOnlySubscribers(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	a := newTestClient(h, "a", false)
	b := newTestClient(h, "b", false)

	assert.True(t, h.Subscribe(a, "leaderboard:c1"))
	assert.False(t, h.Subscribe(a, "leaderboard:c1"))
	assert.True(t, h.Subscribe(b, "leaderboard:c2"))

	assert.Equal(t, 1, h.Publish("leaderboard:c1", []byte(`{"type":"leaderboard"}`)))
	assert.Equal(t, 0, h.Publish("leaderboard:nobody", []byte(`{}`)))

	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))
}

func TestEmptyTopicsAreRemoved(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	a := newTestClient(h, "a", false)

	h.Subscribe(a, "leaderboard:c1")
	h.Subscribe(a, "adminAlertsGlobal")
	assert.Equal(t, 2, h.Stats().Topics)

	assert.True(t, h.Unsubscribe(a, "leaderboard:c1"))
	assert.False(t, h.Unsubscribe(a, "leaderboard:c1"))
	assert.Equal(t, 1, h.Stats().Topics)

	h.Unregister(a)
	stats := h.Stats()
	assert.Zero(t, stats.Topics)
	assert.Zero(t, stats.Clients)
	assert.True(t, a.IsClosed())
	assert.False(t, h.Subscribe(a, "leaderboard:c1"))
	assert.Zero(t, h.Stats().Topics)
}

func TestFullQueueDropsAndDisconnectsSlowClient(t *testing.T) {
	h, m := newTestHub(Config{SendBuffer: 1, MaxDrops: 2})
	slow := newTestClient(h, "slow", false)
	fast := newTestClient(h, "fast", false)
	h.Subscribe(slow, "leaderboard:c1")
	h.Subscribe(fast, "leaderboard:c1")

	for i := 0; i < 3; i++ {
		h.Publish("leaderboard:c1", []byte(fmt.Sprintf(`{"seq":%d}`, i)))
		drain(fast)
	}

	assert.True(t, slow.IsClosed())
	assert.False(t, fast.IsClosed())
	assert.False(t, slow.IsSubscribed("leaderboard:c1"))
	assert.Equal(t, 1, h.SubscriberCount("leaderboard:c1"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SlowConsumers))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesDropped.WithLabelValues("leaderboard")))

	assert.Equal(t, 1, h.Publish("leaderboard:c1", []byte(`{}`)))
}

func TestDropRunResetsOnSuccessfulSend(t *testing.T) {
	h, _ := newTestHub(Config{SendBuffer: 1, MaxDrops: 2})
	c := newTestClient(h, "c", false)
	h.Subscribe(c, "t")

	for i := 0; i < 5; i++ {
		h.Publish("t", []byte(`{}`))
		h.Publish("t", []byte(`{}`))
		drain(c)
	}
	assert.False(t, c.IsClosed())
}

func TestPublishOnceTearsDownTopic(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	relay := &fakeRelay{}
	h.SetRelay(relay)
	a := newTestClient(h, "a", false)
	b := newTestClient(h, "b", false)
	topic := protocol.SubmissionWatchTopic("s1")
	h.Subscribe(a, topic)
	h.Subscribe(b, topic)

	assert.Equal(t, 2, h.PublishOnce(topic, []byte(`{"type":"submission_update"}`)))
	assert.Zero(t, h.SubscriberCount(topic))
	assert.False(t, a.IsSubscribed(topic))
	assert.Zero(t, h.Publish(topic, []byte(`{}`)))
	assert.Empty(t, relay.calls)
}

func TestOnlyAlertTopicsAreRelayed(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	relay := &fakeRelay{}
	h.SetRelay(relay)

	h.Publish(protocol.LeaderboardTopic("c1"), []byte(`{"type":"leaderboard"}`))
	h.PublishOnce(protocol.SubmissionWatchTopic("s1"), []byte(`{}`))
	h.Publish(protocol.AdminAlertsTopic("c1"), []byte(`{"type":"violation_alert"}`))
	h.Publish(protocol.TopicAdminAlertsGlobal, []byte(`{"type":"violation_alert"}`))

	assert.Equal(t, []string{"adminAlerts:c1:false", "adminAlertsGlobal:false"}, relay.calls)
}

func TestDeliverDoesNotRelay(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	relay := &fakeRelay{}
	h.SetRelay(relay)
	a := newTestClient(h, "a", false)
	h.Subscribe(a, "leaderboard:c1")

	assert.Equal(t, 1, h.Deliver("leaderboard:c1", []byte(`{}`), false))
	assert.Empty(t, relay.calls)
}

func TestProcessMessageSubscriptions(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	var hooked []string
	h.SetSubscribeHook(func(c *Client, topic string) {
		hooked = append(hooked, topic)
	})
	viewer := newTestClient(h, "viewer", false)
	admin := newTestClient(h, "admin", true)

	h.ProcessMessage(viewer, []byte(`{"type":"subscribe","contestId":"c1","requestId":"r1"}`))
	msgs := drain(viewer)
	require.Len(t, msgs, 1)
	assert.Equal(t, "subscribed", msgs[0]["type"])
	assert.Equal(t, "leaderboard:c1", msgs[0]["topic"])
	assert.Equal(t, "r1", msgs[0]["requestId"])
	assert.Equal(t, []string{"leaderboard:c1"}, hooked)

	h.ProcessMessage(viewer, []byte(`{"type":"subscribe_admin","contestId":"c1"}`))
	h.ProcessMessage(viewer, []byte(`{"type":"subscribe_admin_global"}`))
	msgs = drain(viewer)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, "error", m["type"])
		assert.Equal(t, "FORBIDDEN", m["code"])
	}
	assert.False(t, viewer.IsSubscribed(protocol.TopicAdminAlertsGlobal))

	h.ProcessMessage(admin, []byte(`{"type":"subscribe_admin","contestId":"c1"}`))
	h.ProcessMessage(admin, []byte(`{"type":"subscribe_admin_global"}`))
	assert.Equal(t, []string{"subscribed", "subscribed"}, types(drain(admin)))
	assert.True(t, admin.IsSubscribed("adminAlerts:c1"))
	assert.True(t, admin.IsSubscribed("adminAlertsGlobal"))

	h.ProcessMessage(viewer, []byte(`{"type":"watch_submission","submissionId":"s9"}`))
	assert.True(t, viewer.IsSubscribed("submissionWatch:s9"))
	drain(viewer)

	h.ProcessMessage(viewer, []byte(`{"type":"unsubscribe","contestId":"c1"}`))
	assert.Equal(t, []string{"unsubscribed"}, types(drain(viewer)))
	assert.False(t, viewer.IsSubscribed("leaderboard:c1"))
}

func TestProcessMessageErrors(t *testing.T) {
	h, m := newTestHub(DefaultConfig())
	c := newTestClient(h, "c", false)

	h.ProcessMessage(c, []byte(`not json`))
	h.ProcessMessage(c, []byte(`{"contestId":"c1"}`))
	h.ProcessMessage(c, []byte(`{"type":"subscribe"}`))
	h.ProcessMessage(c, []byte(`{"type":"watch_submission"}`))
	h.ProcessMessage(c, []byte(`{"type":"teleport","requestId":"x"}`))
	h.ProcessMessage(c, []byte(`{"type":"ping","requestId":"p1"}`))

	msgs := drain(c)
	require.Len(t, msgs, 6)
	codes := make([]interface{}, 0, 5)
	for _, msg := range msgs[:5] {
		assert.Equal(t, "error", msg["type"])
		codes = append(codes, msg["code"])
	}
	assert.Equal(t, []interface{}{"PARSE_ERROR", "PARSE_ERROR", "INVALID_CONTEST", "INVALID_SUBMISSION", "UNKNOWN_TYPE"}, codes)
	assert.Equal(t, "pong", msgs[5]["type"])
	assert.Equal(t, "p1", msgs[5]["requestId"])
	assert.Equal(t, float64(6), testutil.ToFloat64(m.MessagesReceived))
}

func TestDisconnectHookReportsRemainingConnections(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	var remaining []int
	h.SetDisconnectHook(func(c *Client, n int) {
		remaining = append(remaining, n)
	})

	first := NewClient("1", "u1", false, nil, h, zerolog.Nop())
	second := NewClient("2", "u1", false, nil, h, zerolog.Nop())
	h.Register(first)
	h.Register(second)
	assert.Equal(t, 1, h.Stats().Users)

	h.Unregister(first)
	h.Unregister(first)
	h.Unregister(second)
	assert.Equal(t, []int{1, 0}, remaining)
	assert.Zero(t, h.Stats().Users)
}

func TestConcurrentSubscribeUnsubscribePublish(t *testing.T) {
	h, _ := newTestHub(Config{SendBuffer: 4, MaxDrops: 0})
	clients := make([]*Client, 16)
	for i := range clients {
		clients[i] = newTestClient(h, fmt.Sprintf("c%d", i), false)
	}

	var subscribers, background sync.WaitGroup
	stop := make(chan struct{})
	for _, c := range clients {
		subscribers.Add(1)
		go func(c *Client) {
			defer subscribers.Done()
			for i := 0; i < 200; i++ {
				h.Subscribe(c, "leaderboard:hot")
				h.Unsubscribe(c, "leaderboard:hot")
			}
			h.Subscribe(c, "leaderboard:hot")
		}(c)
	}
	background.Add(2)
	go func() {
		defer background.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Publish("leaderboard:hot", []byte(`{}`))
			}
		}
	}()
	go func() {
		defer background.Done()
		for {
			select {
			case <-stop:
				return
			default:
				for _, c := range clients {
					drain(c)
				}
			}
		}
	}()

	subscribers.Wait()
	close(stop)
	background.Wait()

	assert.Equal(t, len(clients), h.SubscriberCount("leaderboard:hot"))
	assert.Equal(t, 1, h.Stats().Topics)
}

func TestWebSocketEndToEnd(t *testing.T) {
	h, _ := newTestHub(DefaultConfig())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient("ws", "u1", r.URL.Query().Get("admin") == "1", conn, h, zerolog.Nop())
		h.Register(c)
		go c.WritePump()
		go c.ReadPump()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	frames := make(chan []byte, 16)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				close(frames)
				return
			}
			for _, line := range bytes.Split(data, []byte{'\n'}) {
				frames <- line
			}
		}
	}()
	next := func() map[string]interface{} {
		select {
		case data, ok := <-frames:
			require.True(t, ok, "connection closed")
			var msg map[string]interface{}
			require.NoError(t, json.Unmarshal(data, &msg))
			return msg
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
			return nil
		}
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","contestId":"c1"}`)))
	assert.Equal(t, "subscribed", next()["type"])

	payload, err := protocol.NewLeaderboard("c1", []map[string]interface{}{{"participantId": "u1", "rank": 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, h.Publish("leaderboard:c1", payload))

	msg := next()
	assert.Equal(t, "leaderboard", msg["type"])
	assert.Equal(t, "c1", msg["contestId"])

	conn.Close()
	assert.Eventually(t, func() bool { return h.Stats().Clients == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, h.SubscriberCount("leaderboard:c1"))
}
