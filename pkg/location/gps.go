package location

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"
	"github.com/tarm/serial"

	fx "github.com/robotalks/buoy.go/pkg/framework"
	"github.com/robotalks/buoy.go/pkg/state"
)

// DefaultBaud is the NMEA receiver baud rate.
const DefaultBaud = 9600

// GPS is an NMEA receiver. Run reads sentences in the background and
// CheckRetrieve publishes the latest fix.
type GPS struct {
	name string
	port io.ReadCloser

	lock  sync.Mutex
	fix   Fix
	fresh bool
	err   error
	fixes uint64
}

// OpenGPS opens an NMEA receiver on a serial port.
func OpenGPS(device string, baud int) (*GPS, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud})
	if err != nil {
		return nil, &TransportError{Source: device, Err: err}
	}
	return NewGPS(device, port), nil
}

// NewGPS creates a GPS reading sentences from r.
func NewGPS(name string, r io.ReadCloser) *GPS {
	return &GPS{name: name, port: r}
}

// Name implements framework.Named.
func (g *GPS) Name() string {
	return "gps:" + g.name
}

// Run implements framework.Runnable.
func (g *GPS) Run(ctx context.Context) error {
	err := fx.RunWithContextCloser(ctx, g.port, func() error {
		scanner := bufio.NewScanner(g.port)
		for scanner.Scan() {
			g.handleLine(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		return io.EOF
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	g.lock.Lock()
	g.err = err
	g.lock.Unlock()
	glog.Errorf("%s: reader stopped: %v", g.Name(), err)
	// the orchestrator reports the failure on each iteration.
	<-ctx.Done()
	return ctx.Err()
}

func (g *GPS) handleLine(line string) {
	fix, ok, err := ParseSentence(line)
	if err != nil {
		glog.V(4).Infof("%s: %v: %q", g.Name(), err, line)
		return
	}
	if !ok {
		return
	}
	g.lock.Lock()
	g.fix, g.fresh = fix, true
	g.fixes++
	g.lock.Unlock()
}

// Fixes returns the number of fixes decoded.
func (g *GPS) Fixes() uint64 {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.fixes
}

// CheckRetrieve implements Source.
func (g *GPS) CheckRetrieve(ctx context.Context, st *state.Shared) error {
	g.lock.Lock()
	fix, fresh, err := g.fix, g.fresh, g.err
	g.fresh = false
	g.lock.Unlock()
	if err != nil {
		return &TransportError{Source: g.name, Err: err}
	}
	if !fresh {
		return ErrNoFix
	}
	st.UpdatePosition(fix.Lon, fix.Lat)
	glog.V(2).Infof("%s: fix %.6f,%.6f at %s", g.Name(), fix.Lon, fix.Lat, fix.UTC)
	return nil
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
