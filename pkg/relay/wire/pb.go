package wire

import (
	"github.com/golang/protobuf/proto"
)

// Typed is the envelope of every message published to the hub.
type Typed struct {
	TypeId  uint32 `protobuf:"varint,1,opt,name=type_id,json=typeId,proto3" json:"type_id,omitempty"`
	Message []byte `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
}

func (m *Typed) Reset()         { *m = Typed{} }
func (m *Typed) String() string { return proto.CompactTextString(m) }
func (*Typed) ProtoMessage()    {}

// AxlPacket is one relayed motion packet. Data holds Count samples of
// six little-endian int16: ax, ay, az, gx, gy, gz.
type AxlPacket struct {
	Timestamp int64   `protobuf:"varint,1,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	Lon       float64 `protobuf:"fixed64,2,opt,name=lon,proto3" json:"lon,omitempty"`
	Lat       float64 `protobuf:"fixed64,3,opt,name=lat,proto3" json:"lat,omitempty"`
	Freq      float32 `protobuf:"fixed32,4,opt,name=freq,proto3" json:"freq,omitempty"`
	Seq       uint64  `protobuf:"varint,5,opt,name=seq,proto3" json:"seq,omitempty"`
	Count     uint32  `protobuf:"varint,6,opt,name=count,proto3" json:"count,omitempty"`
	Data      []byte  `protobuf:"bytes,7,opt,name=data,proto3" json:"data,omitempty"`
}

func (m *AxlPacket) Reset()         { *m = AxlPacket{} }
func (m *AxlPacket) String() string { return proto.CompactTextString(m) }
func (*AxlPacket) ProtoMessage()    {}

// LogEntry is a diagnostic message.
type LogEntry struct {
	Timestamp int64  `protobuf:"varint,1,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	Message   string `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
	Sync      bool   `protobuf:"varint,3,opt,name=sync,proto3" json:"sync,omitempty"`
	Immediate bool   `protobuf:"varint,4,opt,name=immediate,proto3" json:"immediate,omitempty"`
}

func (m *LogEntry) Reset()         { *m = LogEntry{} }
func (m *LogEntry) String() string { return proto.CompactTextString(m) }
func (*LogEntry) ProtoMessage()    {}

// Status is published on every sync.
type Status struct {
	Timestamp int64   `protobuf:"varint,1,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	Lon       float64 `protobuf:"fixed64,2,opt,name=lon,proto3" json:"lon,omitempty"`
	Lat       float64 `protobuf:"fixed64,3,opt,name=lat,proto3" json:"lat,omitempty"`
	Relayed   uint64  `protobuf:"varint,4,opt,name=relayed,proto3" json:"relayed,omitempty"`
	Dropped   uint64  `protobuf:"varint,5,opt,name=dropped,proto3" json:"dropped,omitempty"`
	Budget    int32   `protobuf:"varint,6,opt,name=budget,proto3" json:"budget,omitempty"`
	Queued    uint32  `protobuf:"varint,7,opt,name=queued,proto3" json:"queued,omitempty"`
}

func (m *Status) Reset()         { *m = Status{} }
func (m *Status) String() string { return proto.CompactTextString(m) }
func (*Status) ProtoMessage()    {}

// Meta is the retained device description.
type Meta struct {
	Device           string  `protobuf:"bytes,1,opt,name=device,proto3" json:"device,omitempty"`
	Version          string  `protobuf:"bytes,2,opt,name=version,proto3" json:"version,omitempty"`
	SampleRate       float32 `protobuf:"fixed32,3,opt,name=sample_rate,json=sampleRate,proto3" json:"sample_rate,omitempty"`
	SamplesPerPacket uint32  `protobuf:"varint,4,opt,name=samples_per_packet,json=samplesPerPacket,proto3" json:"samples_per_packet,omitempty"`
	StartedAt        int64   `protobuf:"varint,5,opt,name=started_at,json=startedAt,proto3" json:"started_at,omitempty"`
}

func (m *Meta) Reset()         { *m = Meta{} }
func (m *Meta) String() string { return proto.CompactTextString(m) }
func (*Meta) ProtoMessage()    {}
