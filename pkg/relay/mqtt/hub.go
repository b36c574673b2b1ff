package mqtt

import (
	"context"
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/buoy.go/pkg/clock"
	"github.com/robotalks/buoy.go/pkg/metrics"
	"github.com/robotalks/buoy.go/pkg/motion"
	"github.com/robotalks/buoy.go/pkg/queue"
	"github.com/robotalks/buoy.go/pkg/relay"
	"github.com/robotalks/buoy.go/pkg/relay/wire"
)

// DefaultTimeout is the default time to wait for a broker acknowledgment.
const DefaultTimeout = 5 * time.Second

// MaxDeferredLogs bounds log entries waiting for the next sync.
const MaxDeferredLogs = 16

// connectPoll is how long to wait on the last connect token when
// checking whether the attempt is still in flight.
const connectPoll = time.Millisecond

// ErrNotConnected indicates the broker connection is down.
var ErrNotConnected = errors.New("not connected")

// Hub implements relay.Hub over MQTT.
type Hub struct {
	Queue   *Queue
	Device  string
	Timeout time.Duration
	Clock   clock.Clock
	Metrics *metrics.Collector
	// Status fills device-specific fields of the status published on
	// every sync.
	Status func(*wire.Status)

	meta    *wire.Meta
	seq     uint64
	relayed uint64

	logsLock sync.Mutex
	logs     []*wire.LogEntry

	connLock sync.Mutex
	conn     paho.Token
}

// NewHub creates a Hub for device. meta is published retained while
// connected and cleared by the broker when the connection is lost.
func NewHub(brokerURL string, meta *wire.Meta, c clock.Clock) (*Hub, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+DeviceTopic(meta.Device, TopicMeta), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("sfy:" + meta.Device)
	}
	h := &Hub{
		Queue:   NewQueue(opts, topicPrefix),
		Device:  meta.Device,
		Timeout: DefaultTimeout,
		Clock:   c,
		meta:    meta,
	}
	h.Queue.OnConnect = func(*Queue) { h.onConnected() }
	return h, nil
}

// NewHubWithQueue creates a Hub on an existing Queue.
func NewHubWithQueue(q *Queue, meta *wire.Meta, c clock.Clock) *Hub {
	return &Hub{
		Queue:   q,
		Device:  meta.Device,
		Timeout: DefaultTimeout,
		Clock:   c,
		meta:    meta,
	}
}

// Name implements framework.Named.
func (h *Hub) Name() string {
	return "hub:" + h.Device
}

// Connect starts connecting to the broker. While an attempt is in
// flight the same request is returned.
func (h *Hub) Connect() relay.PendingRequest {
	token, _ := h.connect()
	return tokenRequest{token: token}
}

// connect starts a connection attempt unless the last one is still
// pending, in which case its token is returned with started false.
func (h *Hub) connect() (token paho.Token, started bool) {
	h.connLock.Lock()
	defer h.connLock.Unlock()
	if h.conn != nil && !h.conn.WaitTimeout(connectPoll) {
		return h.conn, false
	}
	h.conn = h.Queue.Connect()
	return h.conn, true
}

// Run implements framework.Runnable. It clears the retained meta and
// disconnects on cancel.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	if h.Queue.Client.IsConnected() {
		waitToken(h.Queue.PubWith(h.topic(TopicMeta), nil, 1, true), h.Timeout)
	}
	h.Queue.Close()
	return ctx.Err()
}

// Relayed returns the number of packets acknowledged by the broker.
func (h *Hub) Relayed() uint64 {
	return h.relayed
}

// DrainQueue implements relay.Hub. A packet is removed from the queue
// only after the broker acknowledged it.
func (h *Hub) DrainQueue(ctx context.Context, consumer *queue.Consumer[motion.Packet]) error {
	defer func() { h.Metrics.SetQueueDepth(consumer.Len()) }()
	for {
		if err := ctx.Err(); err != nil {
			return &relay.LinkError{Op: "drain", Err: err}
		}
		pkt, ok := consumer.Peek()
		if !ok {
			return nil
		}
		token, err := h.Queue.PubMsg(h.topic(TopicAxl), wire.NewAxlPacket(pkt, h.seq+1), 1, false)
		if err != nil {
			consumer.Pop()
			return &relay.LinkError{Op: "encode", Err: err}
		}
		if err := waitToken(token, h.Timeout); err != nil {
			return &relay.LinkError{Op: "publish", Err: err}
		}
		consumer.Pop()
		h.seq++
		h.relayed++
		h.Metrics.IncRelayed()
		glog.V(4).Infof("relayed packet %d (ts %d)", h.seq, pkt.Timestamp)
	}
}

// CheckAndSync implements relay.Hub: it re-establishes a dropped
// connection, flushes deferred log entries and publishes the status.
func (h *Hub) CheckAndSync(ctx context.Context) error {
	if !h.Queue.Client.IsConnected() {
		if _, started := h.connect(); started {
			glog.V(2).Info("hub: reconnecting")
		}
		return &relay.SyncError{Err: ErrNotConnected}
	}
	if err := h.flushLogs(); err != nil {
		return &relay.SyncError{Err: err}
	}
	status := &wire.Status{Relayed: h.relayed}
	if h.Clock != nil {
		status.Timestamp = h.Clock.Now()
	}
	if fn := h.Status; fn != nil {
		fn(status)
	}
	token, err := h.Queue.PubMsg(h.topic(TopicStatus), status, 1, false)
	if err == nil {
		err = waitToken(token, h.Timeout)
	}
	if err != nil {
		return &relay.SyncError{Err: err}
	}
	return nil
}

// Log implements relay.Hub. An immediate entry is published right away,
// others wait for the next CheckAndSync. sync requests a broker
// acknowledgment.
func (h *Hub) Log(message string, sync, immediate bool) (relay.PendingRequest, error) {
	entry := &wire.LogEntry{Message: message, Sync: sync, Immediate: immediate}
	if h.Clock != nil {
		entry.Timestamp = h.Clock.Now()
	}
	if !immediate {
		h.logsLock.Lock()
		if len(h.logs) >= MaxDeferredLogs {
			h.logs = h.logs[1:]
		}
		h.logs = append(h.logs, entry)
		h.logsLock.Unlock()
		return relay.Done{}, nil
	}
	token, err := h.Queue.PubMsg(h.topic(TopicLog), entry, logQoS(entry), false)
	if err != nil {
		return nil, err
	}
	return tokenRequest{token: token}, nil
}

// Restart implements relay.Hub by dropping and re-establishing the
// broker connection. A connect still in flight is waited on instead.
func (h *Hub) Restart() (relay.PendingRequest, error) {
	h.connLock.Lock()
	defer h.connLock.Unlock()
	if h.conn != nil && !h.conn.WaitTimeout(connectPoll) {
		glog.Warning("hub: connect in progress, not restarting link")
		return tokenRequest{token: h.conn}, nil
	}
	glog.Warning("hub: restarting link")
	h.Queue.Client.Disconnect(250)
	h.conn = h.Queue.Connect()
	return tokenRequest{token: h.conn}, nil
}

func (h *Hub) flushLogs() error {
	h.logsLock.Lock()
	logs := h.logs
	h.logs = nil
	h.logsLock.Unlock()
	for i, entry := range logs {
		token, err := h.Queue.PubMsg(h.topic(TopicLog), entry, logQoS(entry), false)
		if err == nil {
			err = waitToken(token, h.Timeout)
		}
		if err != nil {
			h.logsLock.Lock()
			h.logs = append(logs[i:], h.logs...)
			if n := len(h.logs); n > MaxDeferredLogs {
				h.logs = h.logs[n-MaxDeferredLogs:]
			}
			h.logsLock.Unlock()
			return err
		}
	}
	return nil
}

func (h *Hub) onConnected() {
	token, err := h.Queue.PubMsg(h.topic(TopicMeta), h.meta, 1, true)
	if err != nil {
		glog.Errorf("hub: encode meta: %v", err)
		return
	}
	go func() {
		if err := waitToken(token, h.Timeout); err != nil {
			glog.Warningf("hub: publish meta: %v", err)
		}
	}()
}

func (h *Hub) topic(kind string) string {
	return DeviceTopic(h.Device, kind)
}

func logQoS(entry *wire.LogEntry) byte {
	if entry.Sync {
		return 1
	}
	return 0
}
