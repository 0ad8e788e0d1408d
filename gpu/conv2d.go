//go:build gpu

package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"
)

const (
	workgroupSize = 256
	maxGroupsX    = 65535
)

// Conv2DSpec describes one batched NCHW convolution without bias
type Conv2DSpec struct {
	Batch       int
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
	InputHeight int
	InputWidth  int
}

// OutputSize returns the spatial output size of the convolution
func (s Conv2DSpec) OutputSize() (int, int) {
	h := (s.InputHeight+2*s.Padding-s.KernelSize)/s.Stride + 1
	w := (s.InputWidth+2*s.Padding-s.KernelSize)/s.Stride + 1
	return h, w
}

// GenerateShader emits the WGSL compute shader for the spec. One
// invocation computes one output element.
func (s Conv2DSpec) GenerateShader() string {
	outH, outW := s.OutputSize()
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read> input : array<f32>;
		@group(0) @binding(1) var<storage, read> weights : array<f32>;
		@group(0) @binding(2) var<storage, read_write> output : array<f32>;

		const BATCH: u32 = %du;
		const IN_H: u32 = %du;
		const IN_W: u32 = %du;
		const IN_CH: u32 = %du;
		const OUT_CH: u32 = %du;
		const K: u32 = %du;
		const STRIDE: u32 = %du;
		const PADDING: u32 = %du;
		const OUT_H: u32 = %du;
		const OUT_W: u32 = %du;
		const ROW: u32 = %du;

		@compute @workgroup_size(%d)
		fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
			let idx = gid.x + gid.y * ROW;
			let total = BATCH * OUT_CH * OUT_H * OUT_W;
			if (idx >= total) { return; }

			// Output layout: [N, C, H, W]
			let out_w = idx %% OUT_W;
			let out_h = (idx / OUT_W) %% OUT_H;
			let out_c = (idx / (OUT_W * OUT_H)) %% OUT_CH;
			let b = idx / (OUT_W * OUT_H * OUT_CH);

			var sum: f32 = 0.0;
			for (var in_c: u32 = 0u; in_c < IN_CH; in_c++) {
				for (var kh: u32 = 0u; kh < K; kh++) {
					let in_h_signed = i32(out_h * STRIDE + kh) - i32(PADDING);
					if (in_h_signed < 0 || u32(in_h_signed) >= IN_H) { continue; }
					for (var kw: u32 = 0u; kw < K; kw++) {
						let in_w_signed = i32(out_w * STRIDE + kw) - i32(PADDING);
						if (in_w_signed < 0 || u32(in_w_signed) >= IN_W) { continue; }
						let i_idx = ((b * IN_CH + in_c) * IN_H + u32(in_h_signed)) * IN_W + u32(in_w_signed);
						// Weights: [OUT_CH, IN_CH, K, K]
						let w_idx = ((out_c * IN_CH + in_c) * K + kh) * K + kw;
						sum += input[i_idx] * weights[w_idx];
					}
				}
			}
			output[idx] = sum;
		}
	`, s.Batch, s.InputHeight, s.InputWidth, s.InChannels, s.OutChannels,
		s.KernelSize, s.Stride, s.Padding, outH, outW, maxGroupsX*workgroupSize, workgroupSize)
}

// Conv2D uploads input and weights, runs the convolution and reads the
// result back. Calls are serialized on the shared context.
func Conv2D(spec Conv2DSpec, input, weights []float32) ([]float32, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	outH, outW := spec.OutputSize()
	total := spec.Batch * spec.OutChannels * outH * outW

	pipe, err := c.pipeline("Conv2D", spec.GenerateShader())
	if err != nil {
		return nil, fmt.Errorf("compile conv2d: %w", err)
	}

	inBuf, err := c.NewFloatBuffer(input, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer inBuf.Destroy()
	wBuf, err := c.NewFloatBuffer(weights, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer wBuf.Destroy()
	outBuf, err := c.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Conv2D_Out",
		Size:  uint64(total * 4),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, err
	}
	defer outBuf.Destroy()

	bg, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Conv2D_Bind",
		Layout: pipe.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: inBuf, Size: inBuf.GetSize()},
			{Binding: 1, Buffer: wBuf, Size: wBuf.GetSize()},
			{Binding: 2, Buffer: outBuf, Size: outBuf.GetSize()},
		},
	})
	if err != nil {
		return nil, err
	}
	defer bg.Release()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	groups := (total + workgroupSize - 1) / workgroupSize
	gx, gy := groups, 1
	if groups > maxGroupsX {
		gx, gy = maxGroupsX, (groups+maxGroupsX-1)/maxGroupsX
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(pipe)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(uint32(gx), uint32(gy), 1)
	pass.End()

	cb, err := enc.Finish(nil)
	if err != nil {
		enc.Release()
		return nil, fmt.Errorf("finish command buffer: %w", err)
	}
	enc.Release()
	c.Queue.Submit(cb)
	cb.Release()

	return c.ReadBuffer(outBuf, total)
}
