// Package ism330 drives the FIFO of an ISM330DHCX accelerometer and
// gyroscope over I2C.
package ism330

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/robotalks/buoy.go/pkg/motion"
)

// DefaultAddr is the I2C address with SA0 pulled low.
const DefaultAddr uint16 = 0x6a

const (
	regFIFOCtrl3  = 0x09
	regFIFOCtrl4  = 0x0a
	regWhoAmI     = 0x0f
	regCtrl1XL    = 0x10
	regCtrl2G     = 0x11
	regCtrl3C     = 0x12
	regFIFOStatus = 0x3a
	regFIFOData   = 0x78

	whoAmI = 0x6b

	ctrl3BDU    = 0x40
	ctrl3IFInc  = 0x04
	ctrl3Reset  = 0x01
	odr208Hz    = 0x5
	fsXL4g      = 0x2 << 2
	fsG500dps   = 0x1 << 2
	fifoModeOff = 0x0
	fifoModeCon = 0x6

	statusOverrun = 0x40

	tagGyro  = 0x01
	tagAccel = 0x02

	wordSize = 7
)

// ErrOverrun indicates samples were lost in the sensor FIFO.
var ErrOverrun = errors.New("fifo overrun")

// Dev is an ISM330DHCX sampling at 208 Hz.
type Dev struct {
	c conn.Conn

	accel    [3]int16
	gyro     [3]int16
	hasAccel bool
	hasGyro  bool

	w    [2]byte
	word [wordSize]byte
}

// New creates a Dev on an existing connection and checks the chip id.
func New(c conn.Conn) (*Dev, error) {
	d := &Dev{c: c}
	id, err := d.readReg(regWhoAmI)
	if err != nil {
		return nil, err
	}
	if id != whoAmI {
		return nil, fmt.Errorf("unexpected chip id 0x%02x", id)
	}
	return d, nil
}

// Open initializes the host drivers, opens the I2C bus and the device.
// The returned closer releases the bus.
func Open(busName string, addr uint16) (*Dev, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	glog.Infof("IMU on %s addr 0x%02x", bus, addr)
	d, err := New(&i2c.Dev{Addr: addr, Bus: bus})
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	return d, bus, nil
}

// SampleRate implements motion.Sensor.
func (d *Dev) SampleRate() float32 {
	return 208
}

// EnableFIFO implements motion.Sensor: it resets the chip, configures
// both sensors at 208 Hz and starts the FIFO in continuous mode.
func (d *Dev) EnableFIFO() error {
	steps := []struct {
		reg, val byte
	}{
		{regCtrl3C, ctrl3Reset},
		{regCtrl3C, ctrl3BDU | ctrl3IFInc},
		{regFIFOCtrl4, fifoModeOff},
		{regCtrl1XL, odr208Hz<<4 | fsXL4g},
		{regCtrl2G, odr208Hz<<4 | fsG500dps},
		{regFIFOCtrl3, odr208Hz<<4 | odr208Hz},
		{regFIFOCtrl4, fifoModeCon},
	}
	for _, s := range steps {
		if err := d.writeReg(s.reg, s.val); err != nil {
			return err
		}
	}
	d.hasAccel, d.hasGyro = false, false
	return nil
}

// ReadFIFO implements motion.Sensor. Accelerometer and gyroscope words
// are paired into samples; a lone word is kept until its partner arrives.
func (d *Dev) ReadFIFO(buf []motion.Sample) (int, error) {
	var status [2]byte
	d.w[0] = regFIFOStatus
	if err := d.c.Tx(d.w[:1], status[:]); err != nil {
		return 0, err
	}
	if status[1]&statusOverrun != 0 {
		return 0, ErrOverrun
	}
	words := int(status[0]) | int(status[1]&0x03)<<8
	if limit := len(buf) * 2; words > limit {
		words = limit
	}
	n := 0
	d.w[0] = regFIFOData
	for ; words > 0 && n < len(buf); words-- {
		if err := d.c.Tx(d.w[:1], d.word[:]); err != nil {
			return n, err
		}
		v := [3]int16{
			int16(uint16(d.word[1]) | uint16(d.word[2])<<8),
			int16(uint16(d.word[3]) | uint16(d.word[4])<<8),
			int16(uint16(d.word[5]) | uint16(d.word[6])<<8),
		}
		switch d.word[0] >> 3 {
		case tagAccel:
			d.accel, d.hasAccel = v, true
		case tagGyro:
			d.gyro, d.hasGyro = v, true
		default:
			continue
		}
		if d.hasAccel && d.hasGyro {
			buf[n] = motion.Sample{
				Ax: d.accel[0], Ay: d.accel[1], Az: d.accel[2],
				Gx: d.gyro[0], Gy: d.gyro[1], Gz: d.gyro[2],
			}
			n++
			d.hasAccel, d.hasGyro = false, false
		}
	}
	return n, nil
}

func (d *Dev) readReg(reg byte) (byte, error) {
	var r [1]byte
	d.w[0] = reg
	if err := d.c.Tx(d.w[:1], r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (d *Dev) writeReg(reg, val byte) error {
	d.w[0], d.w[1] = reg, val
	return d.c.Tx(d.w[:2], nil)
}
