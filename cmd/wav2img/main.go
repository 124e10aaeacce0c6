// Wav2img - renders a waterfall image from an IQ recording
package main

import (
	"fmt"
	"os"
	"strings"

	"sdr-waterfall/internal/assembler"
	"sdr-waterfall/internal/config"
	"sdr-waterfall/internal/logging"
	"sdr-waterfall/internal/version"

	"github.com/spf13/cobra"
)

var (
	input       string
	output      string
	imageWidth  int
	average     int
	frequency   int64
	logLevel    string
	showVersion bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:           "wav2img",
	Short:         "Render a waterfall image from a stereo IQ WAV recording",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.GetVersionInfo("Wav2img"))
			return nil
		}
		if input == "" {
			cmd.Usage()
			return fmt.Errorf("--input is required")
		}
		return render()
	},
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().StringVarP(&input, "input", "i", "", "input WAV recording")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "output image (default is input with .jpg)")
	rootCmd.Flags().IntVarP(&imageWidth, "imagewidth", "w", 1024, "image width, rounded up to a power of two")
	rootCmd.Flags().IntVarP(&average, "average", "a", 1, "FFT blocks averaged per row")
	rootCmd.Flags().Int64VarP(&frequency, "frequency", "f", 0, "centre frequency shown on the ruler (Hz)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func render() error {
	if output == "" {
		output = strings.TrimSuffix(input, assembler.WaveExt) + assembler.ImageExt
	}

	log, err := logging.New(config.LoggingConfig{Level: logLevel})
	if err != nil {
		return err
	}
	defer log.Sync()

	res, err := assembler.New(log).WaveToSpectrum(input, output, imageWidth, average, frequency)
	if err != nil {
		return err
	}
	fmt.Printf("Image saved to: %s (%dx%d)\n", res.Path, res.Width, res.Height)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
