package psu

import "github.com/itohio/psudlog/pkg/dlog"

// Device defines the interface for PSU monitor sources (real or mocked).
// Every device is a dlog.Monitor returning the latest reading per channel.
type Device interface {
	dlog.Monitor
	Connect() error
	Close() error
	Samples() <-chan RawSample
	NumChannels() int
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
