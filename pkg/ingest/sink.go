// Package ingest stores messages relayed by buoys in InfluxDB.
package ingest

import (
	"context"
	"math"
	"time"

	"github.com/golang/protobuf/proto"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/robotalks/buoy.go/pkg/relay/wire"
)

// Measurements
const (
	MeasurementAxl    = "axl"
	MeasurementStatus = "status"
	MeasurementLog    = "log"
)

// Writer writes points, e.g. api.WriteAPIBlocking.
type Writer interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Options locate the InfluxDB bucket.
type Options struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Sink converts wire messages to points.
type Sink struct {
	Writer Writer

	client influxdb2.Client
}

// NewSink connects a Sink to InfluxDB.
func NewSink(opts Options) *Sink {
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &Sink{
		Writer: client.WriteAPIBlocking(opts.Org, opts.Bucket),
		client: client,
	}
}

// Close implements io.Closer.
func (s *Sink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// Handle writes msg received from device. Messages without a
// measurement are ignored.
func (s *Sink) Handle(ctx context.Context, device string, msg proto.Message) error {
	p := Point(device, msg)
	if p == nil {
		return nil
	}
	return s.Writer.WritePoint(ctx, p)
}

// Point converts msg to a point, or nil.
func Point(device string, msg proto.Message) *write.Point {
	tags := map[string]string{"device": device}
	switch m := msg.(type) {
	case *wire.AxlPacket:
		fields := map[string]interface{}{
			"lon":   m.Lon,
			"lat":   m.Lat,
			"freq":  float64(m.Freq),
			"count": int64(m.Count),
			"seq":   int64(m.Seq),
		}
		if samples, err := m.Samples(); err == nil && len(samples) > 0 {
			var sum, sq float64
			for _, s := range samples {
				az := float64(s.Az)
				sum += az
				sq += az * az
			}
			n := float64(len(samples))
			fields["az_mean"] = sum / n
			fields["az_rms"] = math.Sqrt(sq / n)
		}
		return influxdb2.NewPoint(MeasurementAxl, tags, fields, millis(m.Timestamp))
	case *wire.Status:
		return influxdb2.NewPoint(MeasurementStatus, tags, map[string]interface{}{
			"lon":     m.Lon,
			"lat":     m.Lat,
			"relayed": int64(m.Relayed),
			"dropped": int64(m.Dropped),
			"budget":  int64(m.Budget),
			"queued":  int64(m.Queued),
		}, millis(m.Timestamp))
	case *wire.LogEntry:
		return influxdb2.NewPoint(MeasurementLog, tags, map[string]interface{}{
			"message": m.Message,
		}, millis(m.Timestamp))
	}
	return nil
}

func millis(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}
