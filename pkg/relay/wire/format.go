package wire

import (
	"fmt"
	"reflect"

	"github.com/golang/protobuf/proto"
)

// Describe formats msg in one line for display. Sample payloads are
// summarized.
func Describe(msg proto.Message) string {
	switch m := msg.(type) {
	case *AxlPacket:
		return fmt.Sprintf("AxlPacket seq=%d ts=%d pos=%.6f,%.6f freq=%g samples=%d",
			m.Seq, m.Timestamp, m.Lon, m.Lat, m.Freq, m.Count)
	case *LogEntry:
		return fmt.Sprintf("LogEntry ts=%d %q", m.Timestamp, m.Message)
	}
	return fmt.Sprintf("%s %s", reflect.Indirect(reflect.ValueOf(msg)).Type().Name(), msg.String())
}
