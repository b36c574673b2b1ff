package motion

import (
	"fmt"
	"sync/atomic"

	"github.com/robotalks/buoy.go/pkg/queue"
)

// Subsystem owns the sensor and the producer end of the acquisition
// queue. After boot it belongs to the sampling context only; it is the
// value moved through the handoff cell.
type Subsystem struct {
	sensor    Sensor
	producer  *queue.Producer[Packet]
	batchSize int

	pkt Packet

	packets uint64
	dropped uint64
}

// NewSubsystem creates a Subsystem emitting a packet every batchSize
// samples. batchSize is clamped to [1, MaxSamples].
func NewSubsystem(sensor Sensor, producer *queue.Producer[Packet], batchSize int) *Subsystem {
	if batchSize <= 0 || batchSize > MaxSamples {
		batchSize = MaxSamples
	}
	return &Subsystem{
		sensor:    sensor,
		producer:  producer,
		batchSize: batchSize,
	}
}

// Seed sets the timestamp and position of the first batch. Called once
// at boot, before EnableFIFO.
func (s *Subsystem) Seed(ts int64, lon, lat float64) {
	s.startBatch(ts, lon, lat)
}

// EnableFIFO starts the sensor FIFO.
func (s *Subsystem) EnableFIFO() error {
	if err := s.sensor.EnableFIFO(); err != nil {
		return &SensorError{Op: "enable fifo", Err: err}
	}
	return nil
}

// CheckRetrieve drains the sensor FIFO into the current batch. When the
// batch is full it is pushed to the queue and a new batch starts, tagged
// with ts, lon and lat.
//
// When the queue is full the completed batch is discarded and an error
// wrapping queue.ErrFull is returned; sampling continues with the next
// batch.
func (s *Subsystem) CheckRetrieve(ts int64, lon, lat float64) error {
	n, err := s.sensor.ReadFIFO(s.pkt.Samples[s.pkt.Count:s.batchSize])
	s.pkt.Count += n
	if err != nil {
		return &SensorError{Op: "read fifo", Err: err}
	}
	if s.pkt.Count < s.batchSize {
		return nil
	}
	err = s.producer.Push(&s.pkt)
	s.startBatch(ts, lon, lat)
	if err != nil {
		atomic.AddUint64(&s.dropped, 1)
		return fmt.Errorf("motion packet dropped: %w", err)
	}
	atomic.AddUint64(&s.packets, 1)
	return nil
}

// Packets returns the number of packets queued so far.
func (s *Subsystem) Packets() uint64 {
	return atomic.LoadUint64(&s.packets)
}

// Dropped returns the number of packets discarded on a full queue.
func (s *Subsystem) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// Pending returns the number of samples in the current batch.
func (s *Subsystem) Pending() int {
	return s.pkt.Count
}

func (s *Subsystem) startBatch(ts int64, lon, lat float64) {
	s.pkt.Timestamp, s.pkt.Lon, s.pkt.Lat = ts, lon, lat
	s.pkt.Freq = s.sensor.SampleRate()
	s.pkt.Count = 0
}
