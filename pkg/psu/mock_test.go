package psu

import (
	"testing"
	"time"

	"github.com/itohio/psudlog/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMockConfig() *config.MockConfig {
	return &config.MockConfig{
		Voltage:    []float64{12.0, 5.0},
		Current:    []float64{0.5, 1.2},
		NoiseLevel: 0,
		SampleRate: 5 * time.Millisecond,
	}
}

func TestNewMock(t *testing.T) {
	cfg := testMockConfig()
	dev := NewMock(cfg, testChannels())
	assert.NotNil(t, dev)
	assert.Equal(t, cfg, dev.cfg)
	assert.Equal(t, 2, dev.NumChannels())
	assert.Equal(t, []float64{12.0, 5.0}, dev.voltage)
	assert.False(t, dev.IsConnected())
}

func TestNewMock_NilConfig(t *testing.T) {
	dev := NewMock(nil, testChannels())
	require.NotNil(t, dev.cfg)
	assert.Equal(t, 0.001, dev.cfg.NoiseLevel)
	assert.Equal(t, 10*time.Millisecond, dev.cfg.SampleRate)
	assert.Equal(t, []float64{0, 0}, dev.voltage)
}

func TestMock_ReadingsAfterConnect(t *testing.T) {
	dev := NewMock(testMockConfig(), testChannels())
	require.NoError(t, dev.Connect())
	defer dev.Close()

	// 12V on a 40.95V scale is exactly 1200 counts
	assert.InDelta(t, 12.0, dev.UMonLast(0), 0.01)
	assert.InDelta(t, 0.5, dev.IMonLast(0), 0.001)
	assert.InDelta(t, 5.0, dev.UMonLast(1), 0.01)
	assert.InDelta(t, 1.2, dev.IMonLast(1), 0.001)
}

func TestMock_SetOutput(t *testing.T) {
	dev := NewMock(testMockConfig(), testChannels())

	assert.Error(t, dev.SetOutput(2, 1, 1))
	assert.Error(t, dev.SetOutput(-1, 1, 1))

	require.NoError(t, dev.Connect())
	defer dev.Close()

	require.NoError(t, dev.SetOutput(1, 3.3, 0.25))
	assert.Eventually(t, func() bool {
		return dev.UMonLast(1) > 3.29 && dev.UMonLast(1) < 3.31
	}, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 0.25, dev.IMonLast(1), 0.001)
}

func TestMock_Connect_AlreadyConnected(t *testing.T) {
	dev := NewMock(nil, testChannels())

	require.NoError(t, dev.Connect())
	defer dev.Close()

	err := dev.Connect()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already connected")
}

func TestMock_Close_NotConnected(t *testing.T) {
	dev := NewMock(nil, testChannels())
	assert.NoError(t, dev.Close())
}

func TestMock_Close_Connected(t *testing.T) {
	dev := NewMock(nil, testChannels())

	require.NoError(t, dev.Connect())
	assert.True(t, dev.IsConnected())

	require.NoError(t, dev.Close())
	assert.False(t, dev.IsConnected())
}
