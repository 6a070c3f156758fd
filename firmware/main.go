//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

// monitor accumulates the ADC readings of one output channel.
type monitor struct {
	u, i   machine.ADC
	uSum   uint32
	iSum   uint32
	count  int
	number int // Channel number reported on the wire, counted from 1
}

var (
	uart     = machine.UART0
	monitors [NUM_CHANNELS]monitor

	// Timing
	lastADCRead time.Time
)

func main() {
	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}

	for ch := range monitors {
		PIN_UMON[ch].Configure(machine.PinConfig{Mode: machine.PinInput})
		PIN_IMON[ch].Configure(machine.PinConfig{Mode: machine.PinInput})

		m := &monitors[ch]
		m.u = machine.ADC{Pin: PIN_UMON[ch]}
		m.i = machine.ADC{Pin: PIN_IMON[ch]}
		m.u.Configure(adcConfig)
		m.i.Configure(adcConfig)
		m.number = ch + 1
	}

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastADCRead = time.Now()

	for {
		now := time.Now()

		// Read every channel at the same rate
		if now.Sub(lastADCRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			for ch := range monitors {
				monitors[ch].read()
			}
			lastADCRead = now
		}

		for ch := range monitors {
			if monitors[ch].count >= NUM_SAMPLES {
				monitors[ch].output()
			}
		}

		time.Sleep(100 * time.Microsecond)
	}
}

func (m *monitor) read() {
	// Get scales readings to 16 bits regardless of resolution
	m.uSum += uint32(m.u.Get() >> 4)
	m.iSum += uint32(m.i.Get() >> 4)
	m.count++
}

// output prints the averaged readings and starts a new averaging window.
func (m *monitor) output() {
	n := uint32(m.count)
	if n == 0 {
		n = 1
	}
	uAvg := uint16(m.uSum / n)
	iAvg := uint16(m.iSum / n)

	timestampMicros := time.Now().UnixNano() / 1000

	// Output format: "unix_micros,channel,uadc,iadc\n"
	print(timestampMicros)
	print(",")
	print(m.number)
	print(",")
	print(uAvg)
	print(",")
	print(iAvg)
	print("\n")

	m.uSum = 0
	m.iSum = 0
	m.count = 0
}
