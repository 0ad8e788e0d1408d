package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openfluke/e2fpn/backbone"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // YAML file; empty means backbone.DefaultConfig()
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the e2fpn CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "e2fpn",
		Short: "e2fpn - rotation-invariant ResNet-FPN backbone",
		Long:  "Build, inspect and run the C_N-equivariant ResNet-FPN feature extractor.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "backbone config file (yaml)")

	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newLogger logs to w; debug records only show with --verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// buildBackbone loads the configuration and constructs the backbone.
func buildBackbone(opts *RootOptions, logger *slog.Logger) (*backbone.Backbone, error) {
	cfg := backbone.DefaultConfig()
	if opts.Config != "" {
		var err error
		if cfg, err = backbone.LoadConfig(opts.Config); err != nil {
			return nil, err
		}
		logger.Debug("config loaded", slog.String("path", opts.Config))
	}
	return backbone.New(cfg, backbone.WithLogger(logger))
}
