package psu

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/psudlog/pkg/config"
)

// Mock simulates a PSU with monitored outputs for testing and development.
type Mock struct {
	*readings

	cfg *config.MockConfig

	samples   chan RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool

	// Simulated outputs per channel
	voltage []float64
	current []float64

	startTime time.Time
}

// NewMock creates a new simulated PSU. Outputs of channels missing from cfg are 0.
func NewMock(cfg *config.MockConfig, channels []config.ChannelConfig) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			NoiseLevel: 0.001,
			SampleRate: 10 * time.Millisecond,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Mock{
		readings: newReadings(channels),
		cfg:      cfg,
		samples:  make(chan RawSample, DefaultBufferSize),
		ctx:      ctx,
		cancel:   cancel,
		voltage:  make([]float64, len(channels)),
		current:  make([]float64, len(channels)),
	}
	copy(m.voltage, cfg.Voltage)
	copy(m.current, cfg.Current)

	return m
}

// Connect starts the simulation.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = time.Now()

	// First readings are available right away
	for _, s := range m.generateSamples(m.startTime) {
		m.update(s)
	}

	go m.run()

	return nil
}

// Close stops the simulation.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	m.connected = false

	return nil
}

// Samples returns the channel of simulated samples.
func (m *Mock) Samples() <-chan RawSample {
	return m.samples
}

// IsConnected returns whether the simulation is running.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SetOutput sets the simulated output voltage and load current of channel.
func (m *Mock) SetOutput(channel int, voltage, current float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if channel < 0 || channel >= len(m.voltage) {
		return fmt.Errorf("invalid channel %d", channel+1)
	}
	m.voltage[channel] = voltage
	m.current[channel] = current
	return nil
}

func (m *Mock) run() {
	defer close(m.samples)

	ticker := time.NewTicker(m.cfg.SampleRate)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.mu.RLock()
			samples := m.generateSamples(now)
			m.mu.RUnlock()

			for _, s := range samples {
				m.update(s)
				select {
				case m.samples <- s:
				case <-m.ctx.Done():
					return
				default:
					// Channel full, skip
				}
			}
		}
	}
}

// generateSamples returns one sample per channel. m.mu must be held.
func (m *Mock) generateSamples(now time.Time) []RawSample {
	elapsed := float64(now.Sub(m.startTime).Nanoseconds())

	samples := make([]RawSample, len(m.channels))
	for ch, scale := range m.channels {
		noise := (math.Sin(elapsed*0.001+float64(ch)) +
			math.Cos(elapsed*0.0013+float64(ch))) *
			m.cfg.NoiseLevel * 0.5

		samples[ch] = RawSample{
			Timestamp: now,
			Channel:   ch,
			UADC:      valueToADC(m.voltage[ch]*(1+noise), scale.VoltageFullScale),
			IADC:      valueToADC(m.current[ch]*(1+noise), scale.CurrentFullScale),
		}
	}
	return samples
}
