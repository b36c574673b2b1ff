package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/buoy.go/pkg/clock"
	"github.com/robotalks/buoy.go/pkg/metrics"
	"github.com/robotalks/buoy.go/pkg/motion"
	"github.com/robotalks/buoy.go/pkg/queue"
	"github.com/robotalks/buoy.go/pkg/relay"
	"github.com/robotalks/buoy.go/pkg/relay/wire"
)

type fakeToken struct {
	err     error
	expired bool
}

func (t *fakeToken) Wait() bool                     { return !t.expired }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.expired }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeClient struct {
	paho.Client

	lock         sync.Mutex
	connected    bool
	connects     int
	disconnects  int
	connecting   *fakeToken
	failAfter    int
	pubs         []published
	subscribed   []string
	unsubscribed []string
}

func (c *fakeClient) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

func (c *fakeClient) Connect() paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.connects++
	if c.connecting != nil {
		return c.connecting
	}
	c.connected = true
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.disconnects++
	c.connected = false
}

func (c *fakeClient) Publish(topic string, qos byte, retain bool, payload interface{}) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.failAfter > 0 && len(c.pubs) >= c.failAfter {
		return &fakeToken{expired: true}
	}
	c.pubs = append(c.pubs, published{topic: topic, qos: qos, retain: retain, payload: payload.([]byte)})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return &fakeToken{}
}

func (c *fakeClient) published(topic string) []proto.Message {
	c.lock.Lock()
	defer c.lock.Unlock()
	var msgs []proto.Message
	for _, p := range c.pubs {
		if p.topic != topic {
			continue
		}
		msg, err := wire.Decode(p.payload)
		if err != nil {
			panic(err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func newTestHub(t *testing.T) (*Hub, *fakeClient) {
	client := &fakeClient{connected: true}
	q := &Queue{Client: client, TopicPrefix: "sfy/"}
	h := NewHubWithQueue(q, &wire.Meta{Device: "b1"}, clock.NewManual(1000))
	return h, client
}

func TestClientOptionsFromURL(t *testing.T) {
	opts, prefix, err := ClientOptionsFromURL("mqtt://u:p@broker:1883/sfy?client-id=x&keepalive=30s")
	require.NoError(t, err)
	require.Equal(t, "sfy/", prefix)
	require.Equal(t, "x", opts.ClientID)
	require.Equal(t, "u", opts.Username)
	require.Equal(t, "p", opts.Password)
	require.Len(t, opts.Servers, 1)
	require.Equal(t, "tcp://broker:1883", opts.Servers[0].String())

	_, prefix, err = ClientOptionsFromURL("mqtt://broker")
	require.NoError(t, err)
	require.Equal(t, "", prefix)

	_, _, err = ClientOptionsFromURL("mqtt://broker/?keepalive=forever")
	require.Error(t, err)
}

func TestMatchTopic(t *testing.T) {
	testCases := []struct {
		topic, pattern string
		match          bool
	}{
		{"b1/axl", "+/axl", true},
		{"b1/log", "+/axl", false},
		{"b1/axl", "b1/#", true},
		{"b1/axl/x", "+/axl", false},
		{"b1", "+/axl", false},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.match, MatchTopic(tc.topic, tc.pattern), "%s ~ %s", tc.topic, tc.pattern)
	}
}

func TestDrainInOrder(t *testing.T) {
	h, client := newTestHub(t)
	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	h.Metrics = collector

	p, c := queue.New[motion.Packet]().Split()
	for i := 1; i <= queue.Capacity; i++ {
		pkt := motion.Packet{Timestamp: int64(i), Count: 1}
		require.NoError(t, p.Push(&pkt))
	}
	require.NoError(t, h.DrainQueue(context.Background(), c))
	require.Equal(t, 0, c.Len())

	msgs := client.published("sfy/b1/axl")
	require.Len(t, msgs, queue.Capacity)
	for i, msg := range msgs {
		axl := msg.(*wire.AxlPacket)
		require.Equal(t, int64(i+1), axl.Timestamp)
		require.Equal(t, uint64(i+1), axl.Seq)
	}
	require.Equal(t, uint64(queue.Capacity), h.Relayed())
	require.Equal(t, float64(queue.Capacity), testutil.ToFloat64(collector.PacketsRelayed))
}

func TestDrainKeepsUnackedPacket(t *testing.T) {
	h, client := newTestHub(t)
	client.failAfter = 2
	p, c := queue.New[motion.Packet]().Split()
	for i := 1; i <= 4; i++ {
		pkt := motion.Packet{Timestamp: int64(i)}
		require.NoError(t, p.Push(&pkt))
	}
	err := h.DrainQueue(context.Background(), c)
	var linkErr *relay.LinkError
	require.True(t, errors.As(err, &linkErr))
	require.True(t, errors.Is(err, relay.ErrTimeout))
	require.Equal(t, 2, c.Len())
	next, ok := c.Peek()
	require.True(t, ok)
	require.Equal(t, int64(3), next.Timestamp)
}

func TestCheckAndSync(t *testing.T) {
	h, client := newTestHub(t)
	h.Status = func(s *wire.Status) { s.Budget = 4 }

	req, err := h.Log("deferred", false, false)
	require.NoError(t, err)
	resp, err := req.Wait(0)
	require.NoError(t, err)
	require.False(t, resp.Acked, "deferred entries complete without a broker ack")
	require.Empty(t, client.published("sfy/b1/log"))

	require.NoError(t, h.CheckAndSync(context.Background()))
	logs := client.published("sfy/b1/log")
	require.Len(t, logs, 1)
	require.Equal(t, "deferred", logs[0].(*wire.LogEntry).Message)
	statuses := client.published("sfy/b1/status")
	require.Len(t, statuses, 1)
	status := statuses[0].(*wire.Status)
	require.Equal(t, int32(4), status.Budget)
	require.Equal(t, int64(1000), status.Timestamp)

	client.Disconnect(0)
	err = h.CheckAndSync(context.Background())
	var syncErr *relay.SyncError
	require.True(t, errors.As(err, &syncErr))
	require.True(t, errors.Is(err, ErrNotConnected))
	require.True(t, client.IsConnected(), "sync reconnects")
}

func TestLogAndRestart(t *testing.T) {
	h, client := newTestHub(t)
	req, err := h.Log("budget exhausted", true, true)
	require.NoError(t, err)
	resp, err := req.Wait(time.Second)
	require.NoError(t, err)
	require.True(t, resp.Acked)
	require.Len(t, client.published("sfy/b1/log"), 1)
	require.Equal(t, byte(1), client.pubs[0].qos)

	req, err = h.Restart()
	require.NoError(t, err)
	_, err = req.Wait(time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, client.disconnects)
	require.Equal(t, 1, client.connects)
}

func TestStalledConnectNotRepeated(t *testing.T) {
	h, client := newTestHub(t)
	client.connected = false
	client.connecting = &fakeToken{expired: true}

	h.Connect()
	for i := 0; i < 5; i++ {
		err := h.CheckAndSync(context.Background())
		require.Error(t, err)
		require.True(t, errors.Is(err, ErrNotConnected))
	}
	req, err := h.Restart()
	require.NoError(t, err)
	_, err = req.Wait(time.Second)
	require.Equal(t, relay.ErrTimeout, err)
	require.Equal(t, 1, client.connects)
	require.Equal(t, 0, client.disconnects)

	// attempt gave up, the next sync starts a new one
	client.connecting.expired = false
	client.connecting.err = errors.New("connection refused")
	require.Error(t, h.CheckAndSync(context.Background()))
	require.Equal(t, 2, client.connects)
}

func TestMetaRetainedAndCleared(t *testing.T) {
	h, client := newTestHub(t)
	h.onConnected()
	metas := client.published("sfy/b1/meta")
	require.Len(t, metas, 1)
	require.Equal(t, "b1", metas[0].(*wire.Meta).Device)
	require.True(t, client.pubs[0].retain)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, h.Run(ctx))
	last := client.pubs[len(client.pubs)-1]
	require.Equal(t, "sfy/b1/meta", last.topic)
	require.Empty(t, last.payload)
	require.False(t, client.IsConnected())
}

func TestDiscover(t *testing.T) {
	client := &fakeClient{connected: true}
	q := &Queue{Client: client, TopicPrefix: "sfy/"}
	go func() {
		for i := 0; i < 50; i++ {
			client.lock.Lock()
			subscribed := len(client.subscribed) > 0
			client.lock.Unlock()
			if subscribed {
				break
			}
			time.Sleep(time.Millisecond)
		}
		for _, dev := range []string{"b2", "b1"} {
			data, _ := wire.Encode(&wire.Meta{Device: dev})
			q.Dispatch("sfy/"+dev+"/meta", data)
		}
		q.Dispatch("sfy/b3/meta", nil)
	}()
	metas, err := Discover(context.Background(), q, 200*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, "b1", metas[0].Device)
	require.Equal(t, "b2", metas[1].Device)
	require.Equal(t, []string{"sfy/+/meta"}, client.unsubscribed)
}
