package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"sndsync/internal/config"
	"sndsync/pkg/build"
)

// ParseArgs builds the runtime configuration from defaults, an optional
// YAML config file and command line flags, in that precedence order.
// Returns nil when no run is requested (help, version).
func ParseArgs() (*config.Config, error) {
	buildInfo := build.Flags()
	var cfg *config.Config

	var (
		configPath  string
		period      uint
		repetitions uint
		sampleRate  uint
		memoryMap   bool
		simulated   bool
		driftPPM    int64
		lateWakeups bool
		inputID     int
		outputID    int
		channels    int
		record      bool
		outputFile  string
		wsEnabled   bool
		udpTarget   string
		verbose     bool
	)

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Synchronous full-duplex audio loop with drift correction",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("period") {
				loaded.Loop.Period = period
			}
			if f.Changed("repetitions") {
				loaded.Loop.Repetitions = repetitions
			}
			if f.Changed("sample-rate") {
				loaded.Loop.SampleRate = sampleRate
			}
			if f.Changed("mmap") {
				loaded.Loop.MemoryMap = memoryMap
			}
			if f.Changed("late-wakeups") {
				loaded.Loop.LateWakeups = lateWakeups
			}
			if f.Changed("sim") {
				loaded.Devices.Simulated = simulated
			}
			if f.Changed("drift-ppm") {
				loaded.Devices.DriftPPM = driftPPM
			}
			if f.Changed("in") {
				loaded.Devices.InputID = inputID
			}
			if f.Changed("out") {
				loaded.Devices.OutputID = outputID
			}
			if f.Changed("channels") {
				loaded.Devices.Channels = channels
			}
			if f.Changed("record") {
				loaded.Capture.Enabled = record
			}
			if f.Changed("output") {
				loaded.Capture.OutputFile = outputFile
				loaded.Capture.Enabled = true
			}
			if f.Changed("ws") {
				loaded.Transport.WSEnabled = wsEnabled
			}
			if f.Changed("udp") {
				loaded.Transport.UDPTarget = udpTarget
				loaded.Transport.UDPEnabled = true
			}
			if verbose {
				loaded.Debug = true
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			cfg = &config.Config{Command: "list"}
		},
	}
	rootCmd.AddCommand(listCmd)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML configuration file")

	// Loop configuration
	rootCmd.PersistentFlags().UintVarP(&period, "period", "p", config.DefaultPeriod,
		"Scheduling quantum in frames, must be aligned to the device stepping")
	rootCmd.PersistentFlags().UintVarP(&repetitions, "repetitions", "n", config.DefaultRepetitions,
		"Period completions to run, counted across both channels")
	rootCmd.PersistentFlags().UintVarP(&sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate shared by both directions, in Hertz (Hz)")
	rootCmd.PersistentFlags().BoolVarP(&memoryMap, "mmap", "m", config.DefaultMemoryMap,
		"Memory map the device DMA regions when supported")
	rootCmd.PersistentFlags().BoolVar(&lateWakeups, "late-wakeups", false,
		"Inject simulated scheduling delays to exercise gap recovery")

	// Device configuration
	rootCmd.PersistentFlags().BoolVar(&simulated, "sim", true,
		"Use the simulated loopback device pair instead of hardware")
	rootCmd.PersistentFlags().Int64Var(&driftPPM, "drift-ppm", 0,
		"Simulated hardware clock drift in parts per million (loopback only)")
	rootCmd.PersistentFlags().IntVar(&inputID, "in", config.DefaultDeviceID,
		"Input device ID. Use the 'list' command to see available devices")
	rootCmd.PersistentFlags().IntVar(&outputID, "out", config.DefaultDeviceID,
		"Output device ID. Use the 'list' command to see available devices")
	rootCmd.PersistentFlags().IntVarP(&channels, "channels", "c", config.DefaultChannels,
		"Number of channels per frame (1=mono, 2=stereo)")

	// Capture configuration
	rootCmd.PersistentFlags().BoolVarP(&record, "record", "r", false,
		"Write completed recording periods to a WAV file")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "capture.wav",
		"Output file name for the recorded WAV")

	// Diagnostics transport
	rootCmd.PersistentFlags().BoolVar(&wsEnabled, "ws", false,
		"Broadcast loop events to WebSocket clients")
	rootCmd.PersistentFlags().StringVar(&udpTarget, "udp", "",
		"Send loop events as binary UDP packets to this address")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return cfg, nil
}
