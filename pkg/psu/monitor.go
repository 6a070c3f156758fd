package psu

import (
	"math"
	"sync"

	"github.com/chewxy/math32"
	"github.com/itohio/psudlog/pkg/config"
)

const (
	// ADCMax is the full scale count of the 12-bit monitor ADC.
	ADCMax = 4095
)

// adcToValue converts a monitor ADC count to volts or amperes.
func adcToValue(adc uint16, fullScale float64) float32 {
	return float32(float64(adc) / ADCMax * fullScale)
}

// valueToADC converts volts or amperes to the nearest clamped monitor ADC count.
func valueToADC(value, fullScale float64) uint16 {
	if fullScale <= 0 {
		return 0
	}
	val := value / fullScale * ADCMax
	if val < 0 {
		val = 0
	} else if val > ADCMax {
		val = ADCMax
	}
	return uint16(math.Round(val))
}

// readings caches the latest converted monitor values per channel. The sampler
// reads them from its tick while the device goroutine updates them.
type readings struct {
	channels []config.ChannelConfig

	mu sync.RWMutex
	u  []float32
	i  []float32
}

func newReadings(channels []config.ChannelConfig) *readings {
	return &readings{
		channels: channels,
		u:        make([]float32, len(channels)),
		i:        make([]float32, len(channels)),
	}
}

// update converts and stores a raw sample. Samples of unknown channels are ignored.
func (r *readings) update(s RawSample) bool {
	if s.Channel < 0 || s.Channel >= len(r.channels) {
		return false
	}
	ch := r.channels[s.Channel]
	u := adcToValue(s.UADC, ch.VoltageFullScale)
	i := adcToValue(s.IADC, ch.CurrentFullScale)

	r.mu.Lock()
	r.u[s.Channel] = u
	r.i[s.Channel] = i
	r.mu.Unlock()
	return true
}

// UMonLast returns the last monitored voltage of channel, NaN for unknown channels.
func (r *readings) UMonLast(channel int) float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if channel < 0 || channel >= len(r.u) {
		return math32.NaN()
	}
	return r.u[channel]
}

// IMonLast returns the last monitored current of channel, NaN for unknown channels.
func (r *readings) IMonLast(channel int) float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if channel < 0 || channel >= len(r.i) {
		return math32.NaN()
	}
	return r.i[channel]
}

// NumChannels returns the number of monitored channels.
func (r *readings) NumChannels() int {
	return len(r.channels)
}
