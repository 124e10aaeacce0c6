// Waterfall Assemble - stitches chunk files left by an interrupted capture
// into the final waterfall image and IQ recording.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"sdr-waterfall/internal/assembler"
	"sdr-waterfall/internal/chunk"
	"sdr-waterfall/internal/config"
	"sdr-waterfall/internal/logging"
	"sdr-waterfall/internal/version"

	"github.com/spf13/cobra"
)

var (
	deleteOriginals bool
	withIQ          bool
	sampleRate      uint32
	bits            int
	logLevel        string
	showVersion     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "waterfall-assemble [name-00000.jpg]",
	Short: "Combine waterfall chunk files into one image",
	Long: `Waterfall Assemble takes the name of any chunk of a capture, finds every
chunk of the same capture next to it and combines them into one image.
With --iq the IQ chunks are combined into a WAV recording as well.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.GetVersionInfo("Waterfall Assemble"))
			return nil
		}
		if len(args) == 0 {
			cmd.Usage()
			return fmt.Errorf("chunk file name required")
		}
		return assemble(args[0])
	},
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().BoolVar(&deleteOriginals, "delete", false, "remove image chunks after combining")
	rootCmd.Flags().BoolVar(&withIQ, "iq", false, "also combine IQ chunks into a WAV recording")
	rootCmd.Flags().Uint32Var(&sampleRate, "sample-rate", 2000000, "IQ sample rate written to the WAV header (Hz)")
	rootCmd.Flags().IntVar(&bits, "bits", 16, "IQ chunk sample width: 8 or 16")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func assemble(name string) error {
	base, ext, ok := chunk.SplitName(name)
	if !ok {
		return fmt.Errorf("%s is not a chunk file name (expected name-NNNNN.jpg)", filepath.Base(name))
	}
	if bits != 8 && bits != 16 {
		return fmt.Errorf("invalid sample width %d (must be 8 or 16)", bits)
	}

	log, err := logging.New(config.LoggingConfig{Level: logLevel})
	if err != nil {
		return err
	}
	defer log.Sync()
	a := assembler.New(log)

	if ext == chunk.ImageExt || !withIQ {
		count := chunk.Discover(base, chunk.ImageExt)
		fmt.Printf("Found %d image chunk(s) for %s\n", count, filepath.Base(base))
		img, err := a.AssembleImages(base, count, deleteOriginals)
		if err != nil {
			return fmt.Errorf("failed to combine images: %w", err)
		}
		fmt.Printf("Image saved to: %s (%dx%d, %d chunks, %d skipped)\n",
			img.Path, img.Width, img.Height, img.Chunks, img.Skipped)
	}

	if withIQ {
		count := chunk.Discover(base, chunk.IQExt)
		fmt.Printf("Found %d IQ chunk(s) for %s\n", count, filepath.Base(base))
		wave, err := a.AssembleIQ(base, count, sampleRate, bits)
		if err != nil {
			return fmt.Errorf("failed to combine IQ chunks: %w", err)
		}
		fmt.Printf("IQ saved to: %s (%.3f s, %d chunks, %d skipped)\n",
			wave.Path, wave.Header.Duration(), wave.Chunks, wave.Skipped)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
