package nn

import "errors"

var (
	// ErrShape is returned by kernels when operand shapes do not line up.
	ErrShape = errors.New("nn: shape mismatch")

	// ErrNoGPU is the single error used across CPU/GPU builds when no
	// accelerator backend is compiled in or available.
	ErrNoGPU = errors.New("nn: gpu unavailable (build with -tags=gpu to enable)")
)
