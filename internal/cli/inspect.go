package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfluke/e2fpn/backbone"
)

// InspectResult is the JSON form of the inspect command.
type InspectResult struct {
	Blueprint   backbone.Blueprint `json:"blueprint"`
	InputShape  []int              `json:"input_shape"`
	CoarseShape []int              `json:"coarse_shape"`
	FineShape   []int              `json:"fine_shape"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var height, width int

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the operator table and output shapes",
		Long: `Build the backbone from its configuration and print every operator
with its field types and parameter count, followed by the output shapes
for an input of the given size. Nothing is computed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd, height, width)
		},
	}

	cmd.Flags().IntVar(&height, "height", 480, "input height")
	cmd.Flags().IntVar(&width, "width", 640, "input width")

	return cmd
}

func runInspect(opts *RootOptions, cmd *cobra.Command, height, width int) error {
	logger := newLogger(opts, cmd.ErrOrStderr())
	bb, err := buildBackbone(opts, logger)
	if err != nil {
		return err
	}

	in := []int{1, 1, height, width}
	coarse, fine, err := bb.OutputShapes(in)
	if err != nil {
		return fmt.Errorf("output shapes for %v: %w", in, err)
	}

	res := InspectResult{Blueprint: bb.Blueprint(), InputShape: in, CoarseShape: coarse, FineShape: fine}
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprint(out, res.Blueprint.String())
	fmt.Fprintf(out, "\ninput  %v\ncoarse %v\nfine   %v\n", in, coarse, fine)
	return nil
}
