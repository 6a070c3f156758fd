//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 1  // ADC read interval in milliseconds (all channels)
	NUM_SAMPLES        = 10 // Number of samples to average per output line

	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Serial configuration
	// Line format: "unix_micros,channel,uadc,iadc\n"
	// Example: "1234567890123456,1,4095,4095\n" = ~30 bytes max per line
	// 2 channels * 100 outputs/sec * 30 bytes/line = 6,000 bytes/sec
	// UART 8N1: 10 bits/byte = 60,000 baud minimum
	// 115200 provides ~1.9x headroom
	UART_BAUD_RATE = 115200
)

// Monitor ADC pins per output channel: voltage and current sense amplifiers.
var (
	PIN_UMON = [...]machine.Pin{machine.A1, machine.A3}
	PIN_IMON = [...]machine.Pin{machine.A2, machine.A10}
)

// NUM_CHANNELS is the number of monitored output channels.
const NUM_CHANNELS = len(PIN_UMON)
