package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/buoy.go/pkg/motion"
)

// SampleSize is the encoded size of one sample.
const SampleSize = 12

// NewAxlPacket encodes a motion packet.
func NewAxlPacket(p *motion.Packet, seq uint64) *AxlPacket {
	samples := p.Data()
	data := make([]byte, len(samples)*SampleSize)
	for i, s := range samples {
		b := data[i*SampleSize:]
		binary.LittleEndian.PutUint16(b[0:], uint16(s.Ax))
		binary.LittleEndian.PutUint16(b[2:], uint16(s.Ay))
		binary.LittleEndian.PutUint16(b[4:], uint16(s.Az))
		binary.LittleEndian.PutUint16(b[6:], uint16(s.Gx))
		binary.LittleEndian.PutUint16(b[8:], uint16(s.Gy))
		binary.LittleEndian.PutUint16(b[10:], uint16(s.Gz))
	}
	return &AxlPacket{
		Timestamp: p.Timestamp,
		Lon:       p.Lon,
		Lat:       p.Lat,
		Freq:      p.Freq,
		Seq:       seq,
		Count:     uint32(len(samples)),
		Data:      data,
	}
}

// Samples decodes the sample payload.
func (m *AxlPacket) Samples() ([]motion.Sample, error) {
	if len(m.Data) != int(m.Count)*SampleSize {
		return nil, fmt.Errorf("axl packet: %d bytes for %d samples", len(m.Data), m.Count)
	}
	samples := make([]motion.Sample, m.Count)
	for i := range samples {
		b := m.Data[i*SampleSize:]
		samples[i] = motion.Sample{
			Ax: int16(binary.LittleEndian.Uint16(b[0:])),
			Ay: int16(binary.LittleEndian.Uint16(b[2:])),
			Az: int16(binary.LittleEndian.Uint16(b[4:])),
			Gx: int16(binary.LittleEndian.Uint16(b[6:])),
			Gy: int16(binary.LittleEndian.Uint16(b[8:])),
			Gz: int16(binary.LittleEndian.Uint16(b[10:])),
		}
	}
	return samples, nil
}
