package psu

import (
	"strings"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/psudlog/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannels() []config.ChannelConfig {
	return []config.ChannelConfig{
		{VoltageFullScale: 40.95, CurrentFullScale: 4.095},
		{VoltageFullScale: 40.95, CurrentFullScale: 4.095},
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    RawSample
		wantErr bool
	}{
		{
			name: "valid line - channel 1",
			line: "1234567890123,1,2048,1024",
			want: RawSample{
				Timestamp: time.UnixMicro(1234567890123),
				Channel:   0,
				UADC:      2048,
				IADC:      1024,
			},
		},
		{
			name: "valid line - max ADC values on last channel",
			line: "1234567890123,6,4095,4095",
			want: RawSample{
				Timestamp: time.UnixMicro(1234567890123),
				Channel:   5,
				UADC:      4095,
				IADC:      4095,
			},
		},
		{
			name:    "invalid - wrong number of fields",
			line:    "1234567890123,1,1024",
			wantErr: true,
		},
		{
			name:    "invalid - too many fields",
			line:    "1234567890123,1,2048,1024,extra",
			wantErr: true,
		},
		{
			name:    "invalid - non-numeric timestamp",
			line:    "abc,1,2048,1024",
			wantErr: true,
		},
		{
			name:    "invalid - channel 0",
			line:    "1234567890123,0,2048,1024",
			wantErr: true,
		},
		{
			name:    "invalid - channel out of range",
			line:    "1234567890123,7,2048,1024",
			wantErr: true,
		},
		{
			name:    "invalid - voltage out of range",
			line:    "1234567890123,1,5000,1024",
			wantErr: true,
		},
		{
			name:    "invalid - non-numeric current",
			line:    "1234567890123,1,2048,abc",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Timestamp.UnixNano(), got.Timestamp.UnixNano())
			assert.Equal(t, tt.want.Channel, got.Channel)
			assert.Equal(t, tt.want.UADC, got.UADC)
			assert.Equal(t, tt.want.IADC, got.IADC)
		})
	}
}

func TestNew(t *testing.T) {
	dev := New("COM3", 115200, testChannels(), 100)
	assert.NotNil(t, dev)
	assert.Equal(t, "COM3", dev.port)
	assert.Equal(t, 115200, dev.baudRate)
	assert.Equal(t, 100, dev.bufSize)
	assert.Equal(t, 2, dev.NumChannels())
	assert.False(t, dev.IsConnected())
}

func TestNew_Defaults(t *testing.T) {
	dev := New("COM3", 0, testChannels(), 0)
	assert.Equal(t, DefaultBaudRate, dev.baudRate)
	assert.Equal(t, DefaultBufferSize, dev.bufSize)
}

func TestSerial_Close_NotConnected(t *testing.T) {
	dev := New("COM3", 0, testChannels(), 0)
	assert.NoError(t, dev.Close())
}

func TestSerial_ReadSamples(t *testing.T) {
	dev := New("COM3", 0, testChannels(), 10)

	input := strings.Join([]string{
		"1000,1,1200,500",
		"",
		"garbage",
		"1001,2,4095,0",
		"1002,3,100,100", // not a configured channel
		"1003,1,1210,510",
	}, "\n")

	// returns at EOF and closes the samples channel
	dev.readSamples(strings.NewReader(input))

	var got []RawSample
	for s := range dev.Samples() {
		got = append(got, s)
	}
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[1].Channel)

	assert.InDelta(t, 12.1, dev.UMonLast(0), 1e-4)
	assert.InDelta(t, 0.51, dev.IMonLast(0), 1e-4)
	assert.InDelta(t, 40.95, dev.UMonLast(1), 1e-4)
	assert.Equal(t, float32(0), dev.IMonLast(1))
	assert.True(t, math32.IsNaN(dev.UMonLast(2)))
}

func TestADCConversion(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		fullScale float64
		wantADC   uint16
	}{
		{"zero", 0, 40.95, 0},
		{"half rounds up", 20.475, 40.95, 2048},
		{"full scale", 40.95, 40.95, 4095},
		{"negative clamps", -1, 40.95, 0},
		{"above full scale clamps", 100, 40.95, 4095},
		{"no scale", 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantADC, valueToADC(tt.value, tt.fullScale))
		})
	}

	assert.InDelta(t, 4.095, adcToValue(4095, 4.095), 1e-6)
	assert.InDelta(t, 0.001, adcToValue(1, 4.095), 1e-6)
}
