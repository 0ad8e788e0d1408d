package backbone

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfluke/e2fpn/e2"
)

// validate is the validator instance for configuration records.
var validate = validator.New()

// Config describes the backbone's widths and symmetry group.
type Config struct {
	// InitialDim is the nominal width of the stem output.
	InitialDim int `yaml:"initial_dim" json:"initial_dim" validate:"gt=0"`
	// BlockDims are the nominal widths of the three stages (1/2, 1/4, 1/8).
	BlockDims []int `yaml:"block_dims" json:"block_dims" validate:"len=3,dive,gt=0"`
	// NbrRotations is the order N of the rotation group C_N.
	NbrRotations int `yaml:"nbr_rotations" json:"nbr_rotations" validate:"gt=0"`
	// SameNbrFilters divides nominal widths by N, so expanded channel
	// counts equal the nominal widths.
	SameNbrFilters bool `yaml:"e2_same_nbr_filters" json:"e2_same_nbr_filters"`
	// DimReduction divides nominal widths when SameNbrFilters is false.
	DimReduction int `yaml:"e2_dim_reduction" json:"e2_dim_reduction" validate:"gte=0"`

	// Seed makes weight initialization deterministic.
	Seed int64 `yaml:"seed" json:"seed"`
	// Backend selects the convolution backend: "cpu" (default) or "gpu".
	Backend string `yaml:"backend" json:"backend" validate:"omitempty,oneof=cpu gpu"`
	// BNEpsilon and BNMomentum tune every batch norm; zero means default.
	BNEpsilon  float64 `yaml:"bn_eps" json:"bn_eps" validate:"gte=0"`
	BNMomentum float64 `yaml:"bn_momentum" json:"bn_momentum" validate:"gte=0,lte=1"`
}

// DefaultConfig returns the LoFTR defaults: C8 symmetry, widths
// 128 / [128, 196, 256].
func DefaultConfig() Config {
	return Config{
		InitialDim:     128,
		BlockDims:      []int{128, 196, 256},
		NbrRotations:   8,
		SameNbrFilters: true,
		Backend:        "cpu",
	}
}

// LoadConfig reads a YAML configuration file. Keys absent from the file
// keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Reduction returns the width reduction policy
func (c Config) Reduction() e2.Reduction {
	if c.SameNbrFilters {
		return e2.FullGroup()
	}
	return e2.Divisor(c.DimReduction)
}

// Validate checks the record and that every width yields at least one
// regular field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if !c.SameNbrFilters {
		if c.DimReduction < 1 {
			return fmt.Errorf("%w: e2_dim_reduction is required when e2_same_nbr_filters is false", ErrConfiguration)
		}
		if c.DimReduction > c.NbrRotations {
			return fmt.Errorf("%w: e2_dim_reduction %d must be <= nbr_rotations %d", ErrConfiguration, c.DimReduction, c.NbrRotations)
		}
	}
	_, err := c.fieldTypes()
	return err
}

// Types lists the field types at the backbone's boundaries.
type Types struct {
	Input     e2.FieldType    // one trivial field, the image
	Stem      e2.FieldType    // InitialDim / D regular fields
	Stages    [3]e2.FieldType // BlockDims[i] / D regular fields
	Fine      e2.FieldType    // BlockDims[0] trivial fields, 1/2 output
	Coarse    e2.FieldType    // BlockDims[2] trivial fields, 1/8 output
	Reduction int             // resolved divisor D
}

func (c Config) fieldTypes() (Types, error) {
	n := c.NbrRotations
	red := c.Reduction()

	var t Types
	var err error
	if t.Reduction, err = red.Resolve(n); err != nil {
		return Types{}, err
	}
	if t.Input, err = e2.TrivialType(n, 1); err != nil {
		return Types{}, err
	}
	if t.Stem, err = e2.RegularFromWidth(n, c.InitialDim, red); err != nil {
		return Types{}, fmt.Errorf("initial_dim: %w", err)
	}
	for i, w := range c.BlockDims {
		if t.Stages[i], err = e2.RegularFromWidth(n, w, red); err != nil {
			return Types{}, fmt.Errorf("block_dims[%d]: %w", i, err)
		}
	}
	if t.Fine, err = e2.TrivialType(n, c.BlockDims[0]); err != nil {
		return Types{}, err
	}
	if t.Coarse, err = e2.TrivialType(n, c.BlockDims[2]); err != nil {
		return Types{}, err
	}
	return t, nil
}
