package psu

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itohio/psudlog/pkg/config"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the baud rate of the monitor front-end.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the samples channel buffer.
	DefaultBufferSize = 100
)

// RawSample represents one monitor reading of a channel as sent by the front-end.
type RawSample struct {
	Timestamp time.Time
	Channel   int    // zero based
	UADC      uint16 // 12-bit voltage monitor reading (0-4095)
	IADC      uint16 // 12-bit current monitor reading (0-4095)
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the monitor front-end.
type Serial struct {
	*readings

	port     string
	baudRate int
	bufSize  int

	conn      serial.Port
	samples   chan RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial device with the specified port, baud rate, channel
// scaling and buffer size.
func New(port string, baudRate int, channels []config.ChannelConfig, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		readings:  newReadings(channels),
		port:      port,
		baudRate:  baudRate,
		bufSize:   bufSize,
		samples:   make(chan RawSample, bufSize),
		ctx:       ctx,
		cancel:    cancel,
		connected: false,
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect connects to the serial port and starts reading samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{
		BaudRate: d.baudRate,
	})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true

	go d.readSamples(port)

	return nil
}

// Close closes the connection and stops reading samples.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// Samples returns the channel of parsed samples. Samples are dropped when the
// channel is full; the latest readings are always available through the monitor.
func (d *Serial) Samples() <-chan RawSample {
	return d.samples
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readSamples reads lines from src until it fails or the device is closed.
func (d *Serial) readSamples(src io.Reader) {
	defer close(d.samples)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readSamples: %v", r)
		}
	}()

	scanner := bufio.NewScanner(src)
	for {
		select {
		case <-d.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil && d.ctx.Err() == nil {
					log.Printf("Error reading from serial port: %v", err)
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			sample, err := parseLine(line)
			if err != nil {
				log.Printf("Failed to parse line '%s': %v", line, err)
				continue
			}
			if !d.update(sample) {
				log.Printf("Ignoring sample of unknown channel %d", sample.Channel+1)
				continue
			}

			select {
			case d.samples <- sample:
			case <-d.ctx.Done():
				return
			default:
			}
		}
	}
}

// parseLine parses a line from the front-end into a RawSample.
// Format: unix_micros,channel,uadc,iadc with channel counted from 1.
// Example: 1234567890123,1,2048,1024
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return RawSample{}, fmt.Errorf("invalid line format: expected 4 comma-separated values, got %d", len(parts))
	}

	timestampMicros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	channel, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid channel: %w", err)
	}
	if channel < 1 || channel > config.MaxChannels {
		return RawSample{}, fmt.Errorf("channel out of range: %d (1..%d)", channel, config.MaxChannels)
	}

	uadc, err := parseADC(parts[2])
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid voltage: %w", err)
	}

	iadc, err := parseADC(parts[3])
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid current: %w", err)
	}

	return RawSample{
		Timestamp: time.UnixMicro(timestampMicros),
		Channel:   int(channel) - 1,
		UADC:      uadc,
		IADC:      iadc,
	}, nil
}

func parseADC(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	if v > ADCMax {
		return 0, fmt.Errorf("out of range: %d (max %d)", v, ADCMax)
	}
	return uint16(v), nil
}
