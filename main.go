// SDR Waterfall - records waterfall spectrograms and IQ recordings from an SDR receiver.
// Rows are written in chunks during capture and stitched into one image
// and one WAV file when the capture stops.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sdr-waterfall/internal/capture"
	"sdr-waterfall/internal/config"
	"sdr-waterfall/internal/logging"
	"sdr-waterfall/internal/rtlsdr"
	"sdr-waterfall/internal/version"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command line flag variables that are not bound to viper
var (
	cfgFile     string   // Configuration file path
	batch       []string // Scheduled captures "frequency,start,end"
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sdr-waterfall",
	Short: "Record waterfall spectrograms from an SDR receiver",
	Long: `SDR Waterfall samples a receiver, renders one spectrogram row per averaged
block of FFTs and saves the rows as a JPEG waterfall with a frequency ruler.
Optionally the raw IQ stream is saved as a stereo WAV recording.

Recording stops on Ctrl+C, at the end time, after the run limit or when the
output volume runs low on space. Partial output is always assembled.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.GetVersionInfo("SDR Waterfall"))
			return
		}
		if err := runCapture(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// init initializes the CLI flags and configuration
func init() {
	cobra.OnInitialize(initConfig)

	d := config.DefaultConfig()
	flags := rootCmd.Flags()

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", d.Logging.Level, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	flags.BoolVar(&showVersion, "version", false, "show version information")

	// Receiver
	flags.StringP("device", "d", d.SDR.Device, "receiver selector: index, serial=XXX or synthetic")
	flags.Bool("synthetic-fallback", d.SDR.SyntheticFallback, "record random samples when no receiver is found")
	flags.Float64P("frequency", "f", d.SDR.Frequency, "centre frequency (Hz)")
	flags.Float64("span-low", d.SDR.SpanLow, "span mode lower edge (Hz)")
	flags.Float64("span-high", d.SDR.SpanHigh, "span mode upper edge (Hz)")
	flags.Float64P("sample-rate", "s", d.SDR.SampleRate, "sample rate (Hz)")
	flags.Float64("bandwidth", d.SDR.Bandwidth, "tuner bandwidth (Hz, 0 = driver default)")
	flags.StringP("gain", "g", d.SDR.Gain, "gains as name:value;name:value")

	// Spectrum
	flags.IntP("width", "w", d.Spectrum.Width, "image width, rounded up to a power of two")
	flags.IntP("average", "a", d.Spectrum.Average, "buffers averaged per row")
	flags.Int("decimation", d.Spectrum.Decimation, "keep every Nth sample")
	flags.String("window", d.Spectrum.Window, "FFT window: none or hann")

	// Capture
	flags.Int("batch-size", d.Capture.BatchSize, "rows per image chunk")
	flags.DurationP("marker", "m", d.Capture.MarkerInterval, "time marker interval (0 = off)")
	flags.Bool("marker-align", d.Capture.MarkerAlign, "align markers to wall-clock boundaries")
	flags.String("start", d.Capture.StartTime, "start time (HH:MM, HH:MM:SS or RFC3339)")
	flags.String("end", d.Capture.EndTime, "end time (HH:MM, HH:MM:SS or RFC3339)")
	flags.DurationP("limit", "l", d.Capture.RunLimit, "maximum recording time (0 = unlimited)")
	flags.Duration("start-delay", d.Capture.StartDelay, "delay before recording when no start time is set")
	flags.Bool("save-waterfall", d.Capture.SaveWaterfall, "save the waterfall image")
	flags.Bool("save-iq", d.Capture.SaveIQ, "save the IQ recording")
	flags.Bool("keep-chunks", d.Capture.KeepChunks, "keep image chunks after assembly")
	flags.StringArrayVar(&batch, "batch", nil, "scheduled capture frequency,start,end (repeatable)")

	// Output
	flags.StringP("output", "o", d.Output.Dir, "output directory")
	flags.StringP("name", "n", d.Output.Name, "output file name without extension")
	flags.String("catalog", d.Catalog.Path, "SQLite session catalog (empty = disabled)")

	// GPS
	flags.String("gps-mode", d.GPS.Mode, "GPS mode: none, manual, nmea or gpsd")
	flags.String("gps-port", d.GPS.Port, "GPS serial port (for NMEA mode)")
	flags.String("gpsd-host", d.GPS.GPSDHost, "GPSD host address (for gpsd mode)")
	flags.String("gpsd-port", d.GPS.GPSDPort, "GPSD port (for gpsd mode)")
	flags.Float64("latitude", 0, "manual latitude in decimal degrees (for manual mode)")
	flags.Float64("longitude", 0, "manual longitude in decimal degrees (for manual mode)")
	flags.Float64("altitude", 0, "manual altitude in meters (for manual mode)")

	// Bind command line flags to viper configuration keys
	bindings := map[string]string{
		"sdr.device":              "device",
		"sdr.synthetic_fallback":  "synthetic-fallback",
		"sdr.frequency":           "frequency",
		"sdr.span_low":            "span-low",
		"sdr.span_high":           "span-high",
		"sdr.sample_rate":         "sample-rate",
		"sdr.bandwidth":           "bandwidth",
		"sdr.gain":                "gain",
		"spectrum.width":          "width",
		"spectrum.average":        "average",
		"spectrum.decimation":     "decimation",
		"spectrum.window":         "window",
		"capture.batch_size":      "batch-size",
		"capture.marker_interval": "marker",
		"capture.marker_align":    "marker-align",
		"capture.start_time":      "start",
		"capture.end_time":        "end",
		"capture.run_limit":       "limit",
		"capture.start_delay":     "start-delay",
		"capture.save_waterfall":  "save-waterfall",
		"capture.save_iq":         "save-iq",
		"capture.keep_chunks":     "keep-chunks",
		"output.dir":              "output",
		"output.name":             "name",
		"catalog.path":            "catalog",
		"gps.mode":                "gps-mode",
		"gps.port":                "gps-port",
		"gps.gpsd_host":           "gpsd-host",
		"gps.gpsd_port":           "gpsd-port",
		"gps.manual_latitude":     "latitude",
		"gps.manual_longitude":    "longitude",
		"gps.manual_altitude":     "altitude",
	}
	for key, flag := range bindings {
		viper.BindPFlag(key, flags.Lookup(flag))
	}
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("WATERFALL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, config file, environment and flags
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for _, b := range batch {
		entry, err := config.ParseBatchEntry(b)
		if err != nil {
			return nil, err
		}
		cfg.Capture.Batch = append(cfg.Capture.Batch, entry)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runCapture is the main application logic
func runCapture() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	fmt.Printf("SDR Waterfall %s starting...\n", version.GetFullVersion())

	s := capture.NewSession(cfg, rtlsdr.NewDriver(), log)
	if err := s.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize capture: %w", err)
	}
	defer s.Close()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		fmt.Printf("\nReceived interrupt signal, stopping...\n")
		s.Stop()
	}()

	reports, err := s.Run(context.Background())
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	failed := false
	for _, r := range reports {
		if !r.Result.Reason.Expected() {
			failed = true
			fmt.Printf("%s: stopped after %d rows: %v\n", r.BaseName, r.Result.Rows, r.Result.Err)
		}
	}
	if failed {
		return fmt.Errorf("receiver failed during capture")
	}

	fmt.Printf("Capture completed.\n")
	return nil
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
