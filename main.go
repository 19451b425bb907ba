package main

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"

	"sndsync/cmd"
	"sndsync/internal/capture"
	"sndsync/internal/config"
	"sndsync/internal/device"
	"sndsync/internal/engine"
	applog "sndsync/internal/log"
	"sndsync/internal/metrics"
	"sndsync/internal/transport"
	"sndsync/internal/transport/udp"
)

// main wires devices, data sinks and diagnostics around the duplex loop.
// The program flow has three phases:
//
//  1. Startup: parse arguments and config, open the device pair, attach
//     capture and transports.
//  2. Loop: Engine.ReadWrite runs the period-by-period schedule on one
//     control thread until the repetition count is exhausted or a fatal
//     error aborts the run.
//  3. Shutdown: close the capture file, log the run summary, release
//     the devices. Exit status 0 only when every repetition completed.
func main() {
	os.Exit(run())
}

func run() int {
	// One thread for the loop, one for I/O and diagnostics.
	runtime.GOMAXPROCS(2)

	cfg, err := cmd.ParseArgs()
	if err != nil {
		applog.Errorf("%v", err)
		return 1
	}
	if cfg == nil {
		// Help or version output only.
		return 0
	}
	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}

	if cfg.Command == "list" {
		if err := device.Initialize(); err != nil {
			applog.Errorf("%v", err)
			return 1
		}
		defer device.Terminate()
		if err := device.ListDevices(); err != nil {
			applog.Errorf("%v", err)
			return 1
		}
		return 0
	}

	in, out, cleanup, err := openDevices(cfg)
	if err != nil {
		applog.Errorf("%v", err)
		return 1
	}
	defer cleanup()

	runID := uuid.NewString()
	tracker := metrics.NewTracker()
	observers := engine.MultiObserver{tracker}

	var transports []transport.Transport
	if cfg.Transport.WSEnabled {
		ws := transport.NewEventStream(cfg.Transport.WSAddr)
		transports = append(transports, ws)
		observers = append(observers, transport.NewNotifier(runID, ws))
	}
	if cfg.Transport.UDPEnabled {
		publisher, err := udp.NewPublisher(cfg.Transport.UDPTarget)
		if err != nil {
			applog.Errorf("%v", err)
			return 1
		}
		transports = append(transports, publisher)
		observers = append(observers, transport.NewNotifier(runID, publisher))
	}
	defer func() {
		for _, t := range transports {
			t.Close()
		}
	}()

	opts := []engine.Option{engine.WithObserver(observers)}
	var writer *capture.Writer
	if cfg.Capture.Enabled {
		writer, err = capture.NewWriter(cfg.Capture.OutputFile,
			cfg.Loop.SampleRate, cfg.Devices.Channels)
		if err != nil {
			applog.Errorf("%v", err)
			return 1
		}
		opts = append(opts, engine.WithSink(writer))
	}
	if cfg.Loop.LateWakeups {
		opts = append(opts, engine.WithSimulatedLateWakeups())
	}

	eng := engine.New(in, out, &engine.FrameClock{}, opts...)
	defer eng.Close()

	// Closing the channels on a signal makes the next device operation
	// fail, which aborts the loop.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		applog.Warnf("Signal received, closing channels.")
		eng.Close()
	}()

	applog.Infof("Run %s: period %d, repetitions %d, rate %d.",
		runID, cfg.Loop.Period, cfg.Loop.Repetitions, cfg.Loop.SampleRate)
	runErr := eng.ReadWrite(cfg.Loop.Period, cfg.Loop.Repetitions, cfg.Loop.MemoryMap)

	if writer != nil {
		if err := writer.Close(); err != nil {
			applog.Errorf("Failed to finalize capture file: %v", err)
		} else {
			applog.Infof("Capture saved to %s.", cfg.Capture.OutputFile)
		}
	}

	summary := tracker.Summarize()
	applog.Infof("Completed %d periods, %d late wakeups, %d gap resets.",
		summary.Periods, summary.LateWakeups, summary.GapResets)
	if summary.LateWakeups > 0 {
		applog.Infof("Wakeup lateness mean %.1f, stddev %.1f, p99 %.1f frames.",
			summary.LateMean, summary.LateStdDev, summary.LateP99)
	}
	for channel, mean := range summary.BalanceMean {
		applog.Infof("%s balance mean %.1f, stddev %.1f frames.",
			channel, mean, summary.BalanceStdDev[channel])
	}

	if runErr != nil {
		applog.Errorf("Run failed: %v", runErr)
		return 1
	}
	return 0
}

// openDevices builds the configured device pair. The returned cleanup
// releases subsystem resources, not the channels themselves; those
// belong to the engine.
func openDevices(cfg *config.Config) (in, out engine.Device, cleanup func(), err error) {
	if cfg.Devices.Simulated {
		lin, lout := device.NewLoopbackPair(device.LoopbackConfig{
			SampleRate: cfg.Loop.SampleRate,
			FrameSize:  uint(cfg.Devices.Channels) * 2,
			DriftPPM:   cfg.Devices.DriftPPM,
		})
		return lin, lout, func() {}, nil
	}
	if err := device.Initialize(); err != nil {
		return nil, nil, nil, err
	}
	pin, pout, err := device.OpenPAPair(device.PAConfig{
		SampleRate:   cfg.Loop.SampleRate,
		Channels:     cfg.Devices.Channels,
		InputDevice:  cfg.Devices.InputID,
		OutputDevice: cfg.Devices.OutputID,
	})
	if err != nil {
		device.Terminate()
		return nil, nil, nil, err
	}
	return pin, pout, func() { device.Terminate() }, nil
}
