// Waterfall Info - lists receivers, inspects IQ recordings and session catalogs
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"sdr-waterfall/internal/catalog"
	"sdr-waterfall/internal/rtlsdr"
	"sdr-waterfall/internal/source"
	"sdr-waterfall/internal/version"
	"sdr-waterfall/internal/wav"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

var (
	showVersion bool
	showStats   bool
	statFrames  int
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "waterfall-info",
	Short:         "Inspect receivers, recordings and capture sessions",
	SilenceErrors: true,
	SilenceUsage:  true,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.GetVersionInfo("Waterfall Info"))
			return
		}
		cmd.Usage()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List attached receivers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDevices(rtlsdr.NewDriver())
	},
}

var wavCmd = &cobra.Command{
	Use:   "wav [file.wav]",
	Short: "Display the header of an IQ recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return displayWave(args[0])
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions [catalog.db]",
	Short: "List captures recorded in a session catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listSessions(args[0])
	},
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	wavCmd.Flags().BoolVar(&showStats, "stats", false, "show statistical analysis of samples")
	wavCmd.Flags().IntVar(&statFrames, "stat-frames", 100000, "number of frames included in statistics")

	rootCmd.AddCommand(devicesCmd, wavCmd, sessionsCmd)
}

func listDevices(d source.Driver) error {
	devices, err := d.ListDevices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Printf("No receivers found\n")
		return nil
	}
	fmt.Printf("Found %d receiver(s):\n", len(devices))
	for _, dev := range devices {
		fmt.Printf("  [%d] %s: %s", dev.Index, dev.Driver, dev.Label)
		if dev.Serial != "" {
			fmt.Printf(" (serial %s)", dev.Serial)
		}
		fmt.Printf("\n")
	}
	return nil
}

func displayWave(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filename, err)
	}
	h, err := wav.ReadHeader(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}

	fmt.Printf("WATERFALL RECORDING INFO %s\n\n", version.GetFullVersion())
	fmt.Printf("📁 File Information:\n")
	fmt.Printf("Name: %s\n", filepath.Base(filename))
	if fi, err := os.Stat(filename); err == nil {
		fmt.Printf("Size: %.2f MB (%d bytes)\n", float64(fi.Size())/(1024*1024), fi.Size())
	}
	fmt.Printf("\n📡 Recording:\n")
	fmt.Printf("Channels: %d\n", h.Channels)
	fmt.Printf("Sample rate: %d Hz\n", h.SampleRate)
	fmt.Printf("Bits per sample: %d\n", h.BitsPerSample)
	fmt.Printf("Declared values: %d (%d frames)\n", h.Samples, h.Frames())
	fmt.Printf("Duration: %.3f s\n\n", h.Duration())

	if showStats {
		return displayStatistics(filename, statFrames)
	}
	return nil
}

// displayStatistics summarises up to maxFrames I/Q frames from the start of the file
func displayStatistics(filename string, maxFrames int) error {
	r, err := wav.Open(filename)
	if err != nil {
		return err
	}
	defer r.Close()

	var is, qs, mags []float64
	buf := make([]int16, 8192)
	for len(is) < maxFrames {
		n, err := r.ReadFrames(buf)
		for i := 0; i+1 < n && len(is) < maxFrames; i += 2 {
			iv, qv := float64(buf[i]), float64(buf[i+1])
			is = append(is, iv)
			qs = append(qs, qv)
			mags = append(mags, math.Hypot(iv, qv))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read samples: %w", err)
		}
	}
	if len(is) == 0 {
		fmt.Printf("📊 Statistics: No samples to analyze\n\n")
		return nil
	}

	meanI, stdI := stat.MeanStdDev(is, nil)
	meanQ, stdQ := stat.MeanStdDev(qs, nil)
	meanMag := stat.Mean(mags, nil)
	var power float64
	for _, m := range mags {
		power += m * m
	}
	rms := math.Sqrt(power / float64(len(mags)))

	fmt.Printf("📊 Statistics (%d frames):\n", len(is))
	fmt.Printf("I: mean %.2f, std dev %.2f\n", meanI, stdI)
	fmt.Printf("Q: mean %.2f, std dev %.2f\n", meanQ, stdQ)
	fmt.Printf("Magnitude: mean %.2f, RMS %.2f\n", meanMag, rms)
	if rms > 0 {
		fmt.Printf("Level: %.1f dBFS\n", 20*math.Log10(rms/32768))
	}
	fmt.Printf("\n")
	return nil
}

func listSessions(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("catalog does not exist: %s", path)
	}
	c, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer c.Close()

	sessions, err := c.Sessions(context.Background())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Printf("No sessions recorded\n")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  %.3f MHz  %s -> %s  %s, %d rows\n",
			s.ID, s.Device, float64(s.Frequency)/1e6,
			s.Start.Format("2006-01-02 15:04:05"), s.End.Format("15:04:05"),
			s.StopReason, s.Rows)
		if s.ImagePath != "" {
			fmt.Printf("    image: %s (%d chunks)\n", s.ImagePath, s.ImageChunks)
		}
		if s.WavePath != "" {
			fmt.Printf("    iq:    %s (%d chunks)\n", s.WavePath, s.IQChunks)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
