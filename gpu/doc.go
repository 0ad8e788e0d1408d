// Package gpu runs the convolution kernel of the exported backbone on a
// WebGPU device. Everything except this file is compiled only with the
// "gpu" build tag, so default builds never link the native wgpu library.
package gpu
