package ism330

import (
	"testing"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"

	"github.com/robotalks/buoy.go/pkg/motion"
)

// fakeConn emulates the register file and the FIFO.
type fakeConn struct {
	regs   map[byte]byte
	writes [][2]byte
	fifo   [][wordSize]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{regs: map[byte]byte{regWhoAmI: whoAmI}}
}

func (c *fakeConn) String() string      { return "fake" }
func (c *fakeConn) Duplex() conn.Duplex { return conn.Half }

func (c *fakeConn) push(tag byte, v ...int16) {
	var w [wordSize]byte
	w[0] = tag << 3
	for i, x := range v {
		w[1+i*2], w[2+i*2] = byte(uint16(x)), byte(uint16(x)>>8)
	}
	c.fifo = append(c.fifo, w)
}

func (c *fakeConn) Tx(w, r []byte) error {
	if len(w) == 2 {
		c.writes = append(c.writes, [2]byte{w[0], w[1]})
		c.regs[w[0]] = w[1]
		return nil
	}
	switch w[0] {
	case regFIFOStatus:
		n := len(c.fifo)
		r[0], r[1] = byte(n), byte(n>>8)&0x03
		if c.regs[regFIFOStatus+1]&statusOverrun != 0 {
			r[1] |= statusOverrun
		}
	case regFIFOData:
		copy(r, c.fifo[0][:])
		c.fifo = c.fifo[1:]
	default:
		r[0] = c.regs[w[0]]
	}
	return nil
}

func TestNewChecksChipID(t *testing.T) {
	c := newFakeConn()
	c.regs[regWhoAmI] = 0x12
	_, err := New(c)
	require.Error(t, err)
}

func TestEnableFIFO(t *testing.T) {
	c := newFakeConn()
	d, err := New(c)
	require.NoError(t, err)
	require.NoError(t, d.EnableFIFO())
	require.Equal(t, [2]byte{regCtrl3C, ctrl3Reset}, c.writes[0])
	require.Equal(t, [2]byte{regFIFOCtrl4, fifoModeCon}, c.writes[len(c.writes)-1])
	require.Equal(t, byte(0x58), c.regs[regCtrl1XL])
	require.Equal(t, float32(208), d.SampleRate())
}

func TestReadFIFOPairsWords(t *testing.T) {
	c := newFakeConn()
	d, err := New(c)
	require.NoError(t, err)
	c.push(tagAccel, 1, 2, 3)
	c.push(tagGyro, -4, 5, -6)
	c.push(0x1f, 9, 9, 9) // unknown tag, skipped
	c.push(tagGyro, 10, 11, 12)

	buf := make([]motion.Sample, 4)
	n, err := d.ReadFIFO(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, motion.Sample{Ax: 1, Ay: 2, Az: 3, Gx: -4, Gy: 5, Gz: -6}, buf[0])

	// the lone gyro word completes with the next accel word.
	c.push(tagAccel, 7, 8, 9)
	n, err = d.ReadFIFO(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, motion.Sample{Ax: 7, Ay: 8, Az: 9, Gx: 10, Gy: 11, Gz: 12}, buf[0])
}

func TestReadFIFOOverrun(t *testing.T) {
	c := newFakeConn()
	d, err := New(c)
	require.NoError(t, err)
	c.regs[regFIFOStatus+1] = statusOverrun
	_, err = d.ReadFIFO(make([]motion.Sample, 1))
	require.Equal(t, ErrOverrun, err)
}
