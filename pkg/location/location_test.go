package location

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/buoy.go/pkg/clock"
	"github.com/robotalks/buoy.go/pkg/state"
)

func TestParseSentence(t *testing.T) {
	testCases := []struct {
		line     string
		ok       bool
		err      bool
		lon, lat float64
	}{
		{"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47", true, false, 11.516667, 48.1173},
		{"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A", true, false, 11.516667, 48.1173},
		{"$GNRMC,081836,A,3751.65,S,14507.36,W,000.0,360.0,130998,011.3,E*6E", true, false, -145.122667, -37.860833},
		{"$GPRMC,081836,V,3751.65,S,14507.36,E,000.0,360.0,130998,011.3,E*75", false, false, 0, 0},
		{"$GPGGA,123519,,,,,0,00,,,M,,M,,*6B", false, false, 0, 0},
		{"$GPGSV,3,1,11,03,03,111,00*4A", false, false, 0, 0},
		{"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*48", false, true, 0, 0},
		{"garbage", false, false, 0, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.line, func(t *testing.T) {
			fix, ok, err := ParseSentence(tc.line)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.ok, ok)
			if ok {
				require.InDelta(t, tc.lon, fix.Lon, 1e-6)
				require.InDelta(t, tc.lat, fix.Lat, 1e-6)
			}
		})
	}
}

func TestStatic(t *testing.T) {
	st := state.New(clock.NewManual(0))
	src := NewStatic(5.3, 60.4)
	require.NoError(t, src.CheckRetrieve(context.Background(), st))
	lon, lat := st.Position()
	require.Equal(t, 5.3, lon)
	require.Equal(t, 60.4, lat)
	require.True(t, errors.Is(src.CheckRetrieve(context.Background(), st), ErrNoFix))
}

func TestGPSLatestFix(t *testing.T) {
	r, w := io.Pipe()
	gps := NewGPS("test", r)
	st := state.New(clock.NewManual(0))

	require.True(t, errors.Is(gps.CheckRetrieve(context.Background(), st), ErrNoFix))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gps.Run(ctx) }()

	_, err := io.Copy(w, strings.NewReader(
		"$GPGSV,3,1,11,03,03,111,00*4A\r\n"+
			"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47\r\n"))
	require.NoError(t, err)
	for i := 0; gps.Fixes() == 0 && i < 100; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, gps.CheckRetrieve(context.Background(), st))
	lon, lat := st.Position()
	require.InDelta(t, 11.516667, lon, 1e-6)
	require.InDelta(t, 48.1173, lat, 1e-6)
	require.True(t, errors.Is(gps.CheckRetrieve(context.Background(), st), ErrNoFix))

	cancel()
	require.Equal(t, context.Canceled, <-done)
}

func TestGPSTransportError(t *testing.T) {
	r, w := io.Pipe()
	gps := NewGPS("test", r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gps.Run(ctx)
	w.CloseWithError(errors.New("port vanished"))

	st := state.New(clock.NewManual(0))
	var err error
	for i := 0; i < 100; i++ {
		if err = gps.CheckRetrieve(context.Background(), st); IsTransport(err) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, IsTransport(err))
	require.Contains(t, err.Error(), "port vanished")
}
