package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itohio/psudlog/pkg/config"
	"github.com/itohio/psudlog/pkg/dlog"
	"github.com/itohio/psudlog/pkg/psu"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use simulated PSU instead of serial port")
		listFlag     = flag.Bool("list", false, "List serial ports and exit")
		outputFlag   = flag.String("o", "", "Log file path (overrides config)")
		columnsFlag  = flag.String("columns", "U1,I1", "Logged columns, e.g. U1,I1,P2")
		periodFlag   = flag.Float64("period", 0, "Sampling period in seconds (overrides config)")
		durationFlag = flag.Float64("duration", 0, "Logging duration in seconds (overrides config)")
		triggerFlag  = flag.String("trigger", "", "Trigger source: immediate, bus, manual, pin1, pin2 (overrides config)")
		dumpFlag     = flag.String("dump", "", "Print a log file as CSV and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *outputFlag != "" {
		cfg.Dlog.Path = *outputFlag
	}
	if *triggerFlag != "" {
		if _, err := dlog.ParseTriggerSource(*triggerFlag); err != nil {
			log.Fatalf("Invalid trigger: %v", err)
		}
		cfg.Dlog.TriggerSource = *triggerFlag
	}

	if *listFlag {
		if err := listPorts(); err != nil {
			log.Fatal(err)
		}
		return
	}

	if *dumpFlag != "" {
		if err := dump(os.Stdout, *dumpFlag); err != nil {
			log.Fatalf("Failed to dump %s: %v", *dumpFlag, err)
		}
		return
	}

	selection, err := parseColumns(*columnsFlag, cfg.NumChannels())
	if err != nil {
		log.Fatalf("Invalid columns: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var device psu.Device
	if *mockFlag {
		device = psu.NewMock(&cfg.Mock, cfg.Channels)
		fmt.Println("Using simulated PSU")
	} else {
		device = psu.New(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Channels, psu.DefaultBufferSize)
	}

	if err := device.Connect(); err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.Serial.Port, err)
	}
	defer device.Close()

	if err := waitReadings(ctx, device, readingsTimeout); err != nil {
		device.Close()
		log.Fatalf("No monitor readings: %v", err)
	}

	s := &session{
		cfg:       cfg,
		device:    device,
		selection: selection,
		period:    float32(*periodFlag),
		duration:  float32(*durationFlag),
		triggers:  stdinTriggers(),
		out:       os.Stdout,
	}
	if err := s.run(ctx); err != nil {
		device.Close()
		log.Fatalf("Logging failed: %v", err)
	}
}

const readingsTimeout = 2 * time.Second

// waitReadings blocks until every channel has reported a reading so the first
// logged record holds real values.
func waitReadings(ctx context.Context, device psu.Device, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make([]bool, device.NumChannels())
	remaining := len(seen)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d of %d channels silent: %w", remaining, len(seen), ctx.Err())
		case s, ok := <-device.Samples():
			if !ok {
				return fmt.Errorf("device closed")
			}
			if s.Channel < len(seen) && !seen[s.Channel] {
				seen[s.Channel] = true
				remaining--
			}
		}
	}
	return nil
}

func listPorts() error {
	ports, err := psu.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Printf("%s\t%s\n", p.Name, p.Description)
	}
	return nil
}
