// SPDX-License-Identifier: MIT
package cmd

import (
	"strings"
	"time"

	"soundmeter/internal/config"
	"soundmeter/pkg/build"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Commands selected on the command line.
const (
	CommandLevel    = "level"
	CommandSpectrum = "spectrum"
	CommandList     = "list"
)

// Options is the outcome of argument parsing: the command to run and the
// configuration it runs with.
type Options struct {
	Command string
	Pick    bool // Choose the input device interactively first.
	Config  *config.Config
}

// flagValues holds the raw flag destinations. They only reach the
// configuration when the flag was set explicitly.
type flagValues struct {
	configPath string
	verbose    bool

	logLevel   string
	logFile    string
	headless   bool
	interval   time.Duration
	source     string
	deviceID   int
	channels   int
	sampleRate float64
	frames     int
	lowLatency bool
	file       string
	tone       float64

	offset float64
	scale  float64

	maxFrequency float64
	correction   float64
	window       string
	smoothing    float64
}

// ParseArgs parses args (without the program name), loads the configuration
// and applies explicitly set flags on top of it. Help and version requests
// return nil options and a nil error.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	opts := &Options{}
	fv := &flagValues{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         build.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		// The bare command opens the level meter.
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(CommandLevel, cmd.Flags(), fv)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	levelCmd := &cobra.Command{
		Use:   "level",
		Short: "Show the calibrated noise level",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(CommandLevel, cmd.Flags(), fv)
		},
	}
	levelCmd.Flags().Float64Var(&fv.offset, "offset", config.DefaultCalibrationOffset,
		"Calibration offset added to the raw dB value (0-200)")
	levelCmd.Flags().Float64Var(&fv.scale, "scale", config.DefaultCalibrationScale,
		"Calibration scale applied after the offset (0.5-5)")

	spectrumCmd := &cobra.Command{
		Use:   "spectrum",
		Short: "Show the frequency spectrum and its peak",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(CommandSpectrum, cmd.Flags(), fv)
		},
	}
	spectrumCmd.Flags().Float64Var(&fv.maxFrequency, "max-frequency", config.DefaultMaxFrequency,
		"Highest frequency shown, in Hertz (Hz)")
	spectrumCmd.Flags().Float64Var(&fv.correction, "correction", config.DefaultFrequencyCorrection,
		"Multiplier applied to bin frequencies")
	spectrumCmd.Flags().StringVar(&fv.window, "window", config.DefaultWindow,
		"Window function: "+strings.Join(windowNames, ", "))
	spectrumCmd.Flags().Float64Var(&fv.smoothing, "smoothing", config.DefaultSmoothing,
		"Temporal smoothing constant in [0, 1)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(CommandList, cmd.Flags(), fv)
		},
	}

	rootCmd.AddCommand(levelCmd, spectrumCmd, listCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&fv.configPath, "config", "",
		"Path to a YAML configuration file (default ./config.yaml when present)")

	// Capture source
	pf.StringVar(&fv.source, "source", config.DefaultSource,
		"Capture source: device, file or tone")
	pf.IntVarP(&fv.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&fv.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to capture before the mono down-mix")
	pf.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&fv.frames, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&fv.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")
	pf.StringVar(&fv.file, "file", "",
		"Replay a WAV, MP3 or FLAC file instead of a device (implies --source file)")
	pf.Float64Var(&fv.tone, "tone", config.DefaultToneFrequency,
		"Generate a sine of this frequency instead of capturing (implies --source tone)")
	pf.BoolVar(&opts.Pick, "pick", false,
		"Choose the input device and sample rate interactively")

	// Presentation
	pf.BoolVar(&fv.headless, "headless", false,
		"Log readouts instead of drawing the terminal UI")
	pf.DurationVar(&fv.interval, "interval", config.DefaultRefreshInterval,
		"Refresh interval of the readouts")

	// Debug Configuration
	pf.StringVar(&fv.logLevel, "log-level", "info",
		"Log level: debug, info, warn or error")
	pf.StringVar(&fv.logFile, "log-file", "",
		"Write logs to this file (the terminal UI discards them otherwise)")
	pf.BoolVarP(&fv.verbose, "verbose", "v", false,
		"Show verbose output (same as --log-level debug)")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if opts.Command == "" {
		return nil, nil
	}
	return opts, nil
}

var windowNames = []string{"blackman", "hann", "hamming", "bartletthann", "blackmannuttall", "lanczos", "nuttall"}

// load reads the configuration and overlays the flags the user set.
func (o *Options) load(command string, flags *pflag.FlagSet, fv *flagValues) error {
	cfg, err := config.LoadConfig(fv.configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg, flags, fv)
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.Command = command
	o.Config = cfg
	return nil
}

func applyFlags(cfg *config.Config, flags *pflag.FlagSet, fv *flagValues) {
	set := flags.Changed

	if set("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if fv.verbose {
		cfg.LogLevel = "debug"
	}
	if set("log-file") {
		cfg.LogFile = fv.logFile
	}
	if set("headless") {
		cfg.Display.Headless = fv.headless
	}
	if set("interval") {
		cfg.Display.RefreshInterval = fv.interval
	}

	if set("file") {
		cfg.Audio.File = fv.file
		cfg.Audio.Source = config.SourceFile
	}
	if set("tone") {
		cfg.Audio.ToneFrequency = fv.tone
		cfg.Audio.Source = config.SourceTone
	}
	if set("source") {
		cfg.Audio.Source = strings.ToLower(fv.source)
	}
	if set("device") {
		cfg.Audio.InputDevice = fv.deviceID
	}
	if set("channels") {
		cfg.Audio.InputChannels = fv.channels
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = fv.frames
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}

	if set("offset") {
		cfg.Level.CalibrationOffset = fv.offset
	}
	if set("scale") {
		cfg.Level.CalibrationScale = fv.scale
	}

	if set("max-frequency") {
		cfg.Spectrum.MaxFrequency = fv.maxFrequency
	}
	if set("correction") {
		cfg.Spectrum.FrequencyCorrection = fv.correction
	}
	if set("window") {
		cfg.Spectrum.Window = strings.ToLower(fv.window)
	}
	if set("smoothing") {
		cfg.Spectrum.Smoothing = fv.smoothing
	}
}
