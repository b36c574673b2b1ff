package mqtt

import (
	"context"
	"sort"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/buoy.go/pkg/relay/wire"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Discover collects the retained meta of every connected buoy.
func Discover(ctx context.Context, q *Queue, timeout time.Duration) ([]*wire.Meta, error) {
	resCh := make(chan *wire.Meta, 1)
	sub := q.SubMsgs("+/"+TopicMeta, func(device string, msg proto.Message) {
		meta, ok := msg.(*wire.Meta)
		if !ok {
			return
		}
		if meta.Device == "" {
			meta.Device = device
		}
		select {
		case resCh <- meta:
		case <-time.After(time.Second):
		}
	})
	defer sub.Close()
	if sub.Token != nil {
		if err := waitToken(sub.Token, timeout); err != nil {
			return nil, err
		}
	}

	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	found := make(map[string]*wire.Meta)
	expire := time.After(timeout)
	for {
		select {
		case meta := <-resCh:
			found[meta.Device] = meta
		case <-expire:
			res := make([]*wire.Meta, 0, len(found))
			for _, meta := range found {
				res = append(res, meta)
			}
			sort.Slice(res, func(i, j int) bool { return res[i].Device < res[j].Device })
			return res, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
