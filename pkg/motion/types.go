// Package motion batches raw motion samples into time-stamped,
// position-tagged packets.
package motion

import (
	"errors"
	"fmt"
)

// MaxSamples is the maximum number of samples carried by a Packet.
const MaxSamples = 256

// Sample is one raw accelerometer + gyroscope reading.
type Sample struct {
	Ax, Ay, Az int16
	Gx, Gy, Gz int16
}

// Packet is one immutable batch of samples. Packets are stored by value
// in the acquisition queue so that the sampling context never allocates.
type Packet struct {
	// Timestamp is the capture time (ms) of the first sample.
	Timestamp int64
	Lon       float64
	Lat       float64
	// Freq is the sampling frequency in Hz.
	Freq    float32
	Count   int
	Samples [MaxSamples]Sample
}

// Data returns the filled samples.
func (p *Packet) Data() []Sample {
	return p.Samples[:p.Count]
}

// Sensor is a motion sensor with a hardware FIFO.
type Sensor interface {
	// EnableFIFO resets and starts the FIFO.
	EnableFIFO() error
	// ReadFIFO moves at most len(buf) samples from the FIFO into buf.
	ReadFIFO(buf []Sample) (int, error)
	// SampleRate returns the configured output data rate in Hz.
	SampleRate() float32
}

// ErrSensor is matched by every SensorError.
var ErrSensor = errors.New("sensor error")

// SensorError reports a failed sensor operation.
type SensorError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *SensorError) Error() string {
	return fmt.Sprintf("sensor %s: %v", e.Op, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *SensorError) Unwrap() error {
	return e.Err
}

// Is matches ErrSensor.
func (e *SensorError) Is(target error) bool {
	return target == ErrSensor
}
