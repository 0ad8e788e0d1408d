package backbone

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/openfluke/e2fpn/e2"
	"github.com/openfluke/e2fpn/nn"
)

// State is the lifecycle state of a Backbone.
type State uint8

const (
	// Trainable backbones run on geometric tensors and can switch between
	// training and evaluation.
	Trainable State = iota
	// Exported backbones run baked plain layers and are inference only.
	Exported
)

func (s State) String() string {
	if s == Exported {
		return "exported"
	}
	return "trainable"
}

// Backbone is the rotation-invariant ResNet-FPN feature extractor.
type Backbone struct {
	cfg     Config
	types   Types
	logger  *slog.Logger
	backend nn.Backend

	equivariant *network[geometric] // nil once exported
	baked       *network[plain]     // nil until exported
	training    bool
}

// New validates cfg and builds a trainable backbone in training mode.
// Invalid configurations fail with ErrConfiguration before any operator
// is allocated.
func New(cfg Config, opts ...Option) (*Backbone, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	types, err := cfg.fieldTypes()
	if err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.backend == nil {
		if o.backend, err = resolveBackend(cfg.Backend); err != nil {
			return nil, fmt.Errorf("%w: backend %q: %v", ErrConfiguration, cfg.Backend, err)
		}
	}

	b := &builder{
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		backend:  o.backend,
		eps:      cfg.BNEpsilon,
		momentum: cfg.BNMomentum,
	}
	net, err := buildNetwork(b, types)
	if err != nil {
		return nil, err
	}

	bb := &Backbone{cfg: cfg, types: types, logger: o.logger, backend: o.backend, equivariant: net}
	if err := bb.CheckBoundaries(); err != nil {
		return nil, err
	}
	bb.setTraining(true)

	attrs := []any{
		slog.Int("group_order", cfg.NbrRotations),
		slog.Int("reduction", types.Reduction),
		slog.String("stem", types.Stem.String()),
		slog.String("layer3", types.Stages[2].String()),
		slog.String("backend", o.backend.Name()),
		slog.Int("params", bb.paramCount()),
	}
	if cpu, ok := o.backend.(*nn.CPUBackend); ok {
		attrs = append(attrs, slog.String("cpu", cpu.Describe()), slog.Int("workers", cpu.Workers()))
	}
	bb.logger.Info("backbone built", attrs...)
	return bb, nil
}

// Config returns the configuration the backbone was built from.
func (b *Backbone) Config() Config { return b.cfg }

// Types returns the field types at the backbone's boundaries.
func (b *Backbone) Types() Types { return b.types }

// State reports whether the backbone has been exported.
func (b *Backbone) State() State {
	if b.baked != nil {
		return Exported
	}
	return Trainable
}

// Training reports whether batch norms use batch statistics.
func (b *Backbone) Training() bool { return b.training }

// Forward runs the network on a [N, 1, H, W] image batch and returns the
// invariant coarse features [N, BlockDims[2], H/8, W/8] and fine features
// [N, BlockDims[0], H/2, W/2]. In training mode batch-norm running
// statistics are updated.
func (b *Backbone) Forward(ctx context.Context, x *nn.Tensor) (coarse, fine *nn.Tensor, err error) {
	if x == nil {
		return nil, nil, fmt.Errorf("%w: nil input", ErrTypeMismatch)
	}
	state := b.State()
	ctx, span := startForwardSpan(ctx, state == Exported, x.Shape)
	defer span.End()
	start := time.Now()

	if state == Exported {
		coarse, fine, err = b.baked.forward(x)
	} else {
		coarse, fine, err = b.equivariant.forward(x)
	}

	recordForwardMetrics(ctx, time.Since(start), state.String(), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.logger.Debug("forward failed", slog.String("state", state.String()), slog.Any("error", err))
		return nil, nil, err
	}
	return coarse, fine, nil
}

// OutputShapes computes the two output shapes for an input shape without
// running the network.
func (b *Backbone) OutputShapes(in []int) (coarse, fine []int, err error) {
	if b.baked != nil {
		return b.baked.outputShape(in)
	}
	return b.equivariant.outputShape(in)
}

// Train switches batch norms to batch statistics. It fails with
// ErrStateViolation after Export.
func (b *Backbone) Train() error {
	if b.baked != nil {
		return fmt.Errorf("%w: cannot train an exported backbone", ErrStateViolation)
	}
	b.setTraining(true)
	return nil
}

// Eval switches batch norms to their running statistics. Exported
// backbones are always in evaluation mode, so Eval is a no-op for them.
func (b *Backbone) Eval() {
	if b.baked != nil {
		return
	}
	b.setTraining(false)
}

func (b *Backbone) setTraining(training bool) {
	b.equivariant.walk(func(_ string, o op[geometric]) {
		if t, ok := o.(e2.Trainable); ok {
			t.SetTraining(training)
		}
	})
	if b.training != training {
		b.logger.Debug("mode changed", slog.Bool("training", training))
	}
	b.training = training
}

// Parameters returns every learnable tensor in a stable order. The
// tensors are live: writing to them changes the network.
func (b *Backbone) Parameters() ([]*nn.Tensor, error) {
	if b.baked != nil {
		return nil, fmt.Errorf("%w: exported backbone has no learnable parameters", ErrStateViolation)
	}
	var params []*nn.Tensor
	b.equivariant.walk(func(_ string, o op[geometric]) {
		if m, ok := o.(e2.Module); ok {
			params = append(params, m.Parameters()...)
		}
	})
	return params, nil
}

func (b *Backbone) paramCount() int {
	total := 0
	b.equivariant.walk(func(_ string, o op[geometric]) {
		total += o.Spec().Params
	})
	return total
}

// Export bakes every operator into its plain counterpart, recursively,
// and switches the backbone to inference on plain tensors. Batch norms
// are frozen with their running statistics. Export is one-shot: a second
// call fails with ErrStateViolation. On failure the backbone is left
// unchanged.
func (b *Backbone) Export() error {
	if b.baked != nil {
		recordExport(context.Background(), false)
		return fmt.Errorf("%w: backbone already exported", ErrStateViolation)
	}
	b.logger.Debug("export started")
	wasTraining := b.training
	b.setTraining(false)

	net, err := mapNetwork(b.equivariant, family[plain](baked{}), exportOp)
	if err != nil {
		b.setTraining(wasTraining)
		recordExport(context.Background(), false)
		return fmt.Errorf("export: %w", err)
	}
	if err := net.links(); err != nil {
		b.setTraining(wasTraining)
		recordExport(context.Background(), false)
		return fmt.Errorf("export: %w", err)
	}

	b.baked = net
	b.equivariant = nil
	b.training = false
	recordExport(context.Background(), true)
	b.logger.Info("backbone exported", slog.String("backend", b.backend.Name()))
	return nil
}

// CheckBoundaries verifies, without a forward pass, that every operator's
// output type is the next operator's input type along every path, and
// that both outputs are made of trivial fields only.
func (b *Backbone) CheckBoundaries() error {
	if b.baked != nil {
		return checkNetwork(b.baked)
	}
	return checkNetwork(b.equivariant)
}

func checkNetwork[T any](n *network[T]) error {
	if err := n.links(); err != nil {
		return err
	}
	if err := allTrivial("projector", n.projector.OutType()); err != nil {
		return err
	}
	return allTrivial("fpn.layer1_outconv2", n.head.fineFuse.outType())
}

func allTrivial(where string, t e2.FieldType) error {
	for i := 0; i < t.Len(); i++ {
		if t.Repr(i) != e2.Trivial {
			return fmt.Errorf("%w: %s output %s is not invariant", ErrTypeMismatch, where, t)
		}
	}
	return nil
}
