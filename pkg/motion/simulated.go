package motion

import (
	"math"

	"github.com/robotalks/buoy.go/pkg/clock"
)

// Simulated is a Sensor producing a synthetic swell at a fixed rate,
// paced by a clock. It is used on hosts without the motion sensor.
type Simulated struct {
	Clock  clock.Clock
	Rate   float32
	Period float64 // swell period in seconds

	enabled bool
	start   int64
	emitted int64
}

// NewSimulated creates a Simulated sensor.
func NewSimulated(c clock.Clock, rate float32) *Simulated {
	return &Simulated{Clock: c, Rate: rate, Period: 8}
}

// EnableFIFO implements Sensor.
func (s *Simulated) EnableFIFO() error {
	s.enabled, s.start, s.emitted = true, s.Clock.Now(), 0
	return nil
}

// SampleRate implements Sensor.
func (s *Simulated) SampleRate() float32 {
	return s.Rate
}

// ReadFIFO implements Sensor.
func (s *Simulated) ReadFIFO(buf []Sample) (int, error) {
	if !s.enabled {
		return 0, nil
	}
	due := (s.Clock.Now() - s.start) * int64(s.Rate) / 1000
	n := int(due - s.emitted)
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		t := float64(s.emitted+int64(i)) / float64(s.Rate)
		phase := 2 * math.Pi * t / s.Period
		// 1g on z is 16384 at +/-2g full scale.
		buf[i] = Sample{
			Ax: int16(800 * math.Sin(phase)),
			Ay: int16(400 * math.Cos(phase)),
			Az: int16(16384 + 1200*math.Sin(phase)),
			Gx: int16(300 * math.Cos(phase)),
			Gy: int16(150 * math.Sin(phase)),
		}
	}
	if n > 0 {
		s.emitted += int64(n)
	}
	return n, nil
}
