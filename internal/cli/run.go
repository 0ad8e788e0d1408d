package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfluke/e2fpn/nn"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Height, Width int
	Batch         int
	InputSeed     int64
	Export        bool
}

// RunResult is the JSON form of the run command.
type RunResult struct {
	CoarseShape []int          `json:"coarse_shape"`
	FineShape   []int          `json:"fine_shape"`
	Elapsed     string         `json:"elapsed"`
	Coarse      *nn.Divergence `json:"coarse_divergence,omitempty"`
	Fine        *nn.Divergence `json:"fine_divergence,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a forward pass on a random image",
		Long: `Build the backbone, switch it to evaluation mode and run one forward
pass on a deterministic random image.

With --export the backbone is then exported and the same image is run
again; the divergence between the two results is reported.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForward(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Height, "height", 64, "input height")
	cmd.Flags().IntVar(&opts.Width, "width", 64, "input width")
	cmd.Flags().IntVar(&opts.Batch, "batch", 1, "batch size")
	cmd.Flags().Int64Var(&opts.InputSeed, "input-seed", 0, "seed of the random input image")
	cmd.Flags().BoolVar(&opts.Export, "export", false, "export and report divergence from the trainable network")

	return cmd
}

func runForward(rootOpts *RootOptions, opts *RunOptions, cmd *cobra.Command) error {
	if opts.Batch < 1 || opts.Height < 1 || opts.Width < 1 {
		return fmt.Errorf("--batch, --height and --width must be positive, got %d, %d, %d", opts.Batch, opts.Height, opts.Width)
	}
	logger := newLogger(rootOpts, cmd.ErrOrStderr())
	bb, err := buildBackbone(rootOpts, logger)
	if err != nil {
		return err
	}
	bb.Eval()

	x := randomImage(opts.InputSeed, opts.Batch, opts.Height, opts.Width)
	ctx := cmd.Context()

	start := time.Now()
	coarse, fine, err := bb.Forward(ctx, x)
	if err != nil {
		return err
	}
	res := RunResult{CoarseShape: coarse.Shape, FineShape: fine.Shape, Elapsed: time.Since(start).String()}
	logger.Debug("forward done", slog.String("elapsed", res.Elapsed))

	if opts.Export {
		if err := bb.Export(); err != nil {
			return err
		}
		ec, ef, err := bb.Forward(ctx, x)
		if err != nil {
			return fmt.Errorf("exported forward: %w", err)
		}
		dc, err := nn.Compare(coarse, ec)
		if err != nil {
			return err
		}
		df, err := nn.Compare(fine, ef)
		if err != nil {
			return err
		}
		res.Coarse, res.Fine = &dc, &df
	}

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(out, "coarse %v\nfine   %v\nelapsed %s\n", res.CoarseShape, res.FineShape, res.Elapsed)
	if res.Coarse != nil {
		fmt.Fprintf(out, "export coarse %s\nexport fine   %s\n", res.Coarse, res.Fine)
	}
	return nil
}

func randomImage(seed int64, batch, h, w int) *nn.Tensor {
	rng := rand.New(rand.NewSource(seed))
	x := nn.NewTensor(batch, 1, h, w)
	for i := range x.Data {
		x.Data[i] = float32(rng.Float64())
	}
	return x
}
