// Package relay defines the link between a buoy and its hub.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robotalks/buoy.go/pkg/motion"
	"github.com/robotalks/buoy.go/pkg/queue"
)

// ErrTimeout indicates a PendingRequest was not answered in time.
var ErrTimeout = errors.New("request timed out")

// LinkError is a failure relaying packets.
type LinkError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *LinkError) Error() string {
	return fmt.Sprintf("relay link %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *LinkError) Unwrap() error {
	return e.Err
}

// SyncError is a failure reconciling state with the hub.
type SyncError struct {
	Err error
}

// Error implements error.
func (e *SyncError) Error() string {
	return fmt.Sprintf("relay sync: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Response is the hub's answer to a request.
type Response struct {
	// Acked is true when the hub acknowledged delivery.
	Acked bool
}

// PendingRequest is a request sent to the hub.
type PendingRequest interface {
	Wait(timeout time.Duration) (Response, error)
}

// Hub is the relay hub as seen from the buoy.
type Hub interface {
	// DrainQueue relays every pending packet in order.
	DrainQueue(ctx context.Context, consumer *queue.Consumer[motion.Packet]) error
	// CheckAndSync reconciles pending state with the hub.
	CheckAndSync(ctx context.Context) error
	// Log sends a diagnostic message.
	Log(message string, sync, immediate bool) (PendingRequest, error)
	// Restart restarts the modem link.
	Restart() (PendingRequest, error)
}

// Done is a PendingRequest that has already completed.
type Done struct {
	Response Response
	Err      error
}

// Wait implements PendingRequest.
func (d Done) Wait(time.Duration) (Response, error) {
	return d.Response, d.Err
}
