// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/primitive2d.wgsl
var primitive2DShaderSource string

//go:embed shaders/primitive3d.wgsl
var primitive3DShaderSource string

// Vertex strides in bytes.
//
//	2D: position (vec2<f32>)                       = 8 bytes
//	3D: position (vec3<f32>) + normal (vec3<f32>)  = 24 bytes
const (
	Vertex2DStride = 8
	Vertex3DStride = 24
)

// Uniform block sizes in bytes.
const (
	Color2DUniformSize   = 16      // color vec4<f32>
	CameraUniformSize    = 64      // view_proj mat4x4<f32>
	TransformUniformSize = 64 + 16 // model mat4x4<f32> + color vec4<f32>
)

// PrimitiveKind selects one of the two primitive pipelines.
type PrimitiveKind int

const (
	// Primitive2D draws flat-colored 2D triangles without depth testing.
	Primitive2D PrimitiveKind = iota
	// Primitive3D draws lit 3D triangles with depth testing.
	Primitive3D
)

// String returns "2d" or "3d".
func (k PrimitiveKind) String() string {
	switch k {
	case Primitive2D:
		return "2d"
	case Primitive3D:
		return "3d"
	default:
		return fmt.Sprintf("PrimitiveKind(%d)", int(k))
	}
}

// PrimitivePipeline is a render pipeline with its layouts. The shader
// module belongs to the ShaderCache it was created from.
type PrimitivePipeline struct {
	device     hal.Device
	kind       PrimitiveKind
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.RenderPipeline
}

// NewPrimitivePipeline builds the pipeline of the given kind.
func NewPrimitivePipeline(device hal.Device, shaders *ShaderCache, kind PrimitiveKind) (*PrimitivePipeline, error) {
	p := &PrimitivePipeline{device: device, kind: kind}
	if err := p.create(shaders); err != nil {
		p.Destroy()
		return nil, err
	}
	slogger().Debug("gpu: primitive pipeline created", "kind", kind)
	return p, nil
}

func (p *PrimitivePipeline) create(shaders *ShaderCache) error {
	label := "primitive" + p.kind.String()

	source := primitive2DShaderSource
	if p.kind == Primitive3D {
		source = primitive3DShaderSource
	}
	shader, err := shaders.Module(label+"_shader", source)
	if err != nil {
		return err
	}
	p.shader = shader

	bindLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_uniform_layout",
		Entries: p.layoutEntries(),
	})
	if err != nil {
		return fmt.Errorf("create %s uniform layout: %w", label, err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create %s pipeline layout: %w", label, err)
	}
	p.pipeLayout = pipeLayout

	premulBlend := gputypes.BlendStatePremultiplied()
	pipeline, err := p.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label + "_pipeline",
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.shader,
			EntryPoint: "vs_main",
			Buffers:    p.vertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     p.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    ColorFormat,
					Blend:     &premulBlend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		DepthStencil: p.depthState(),
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("create %s render pipeline: %w", label, err)
	}
	p.pipeline = pipeline
	return nil
}

func (p *PrimitivePipeline) layoutEntries() []gputypes.BindGroupLayoutEntry {
	if p.kind == Primitive2D {
		return []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		}
	}
	return []gputypes.BindGroupLayoutEntry{
		{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
		{
			Binding:    1,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		},
	}
}

func (p *PrimitivePipeline) vertexLayout() []gputypes.VertexBufferLayout {
	if p.kind == Primitive2D {
		return []gputypes.VertexBufferLayout{
			{
				ArrayStride: Vertex2DStride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
				},
			},
		}
	}
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: Vertex3DStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
			},
		},
	}
}

// depthState matches the frame's depth attachment. 2D ignores depth.
func (p *PrimitivePipeline) depthState() *hal.DepthStencilState {
	keep := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	s := &hal.DepthStencilState{
		Format:            DepthFormat,
		DepthWriteEnabled: false,
		DepthCompare:      gputypes.CompareFunctionAlways,
		StencilFront:      keep,
		StencilBack:       keep,
		StencilReadMask:   0x00,
		StencilWriteMask:  0x00,
	}
	if p.kind == Primitive3D {
		s.DepthWriteEnabled = true
		s.DepthCompare = gputypes.CompareFunctionLess
	}
	return s
}

// UniformBinding is one uniform buffer bound by NewBindGroup.
type UniformBinding struct {
	Buffer hal.Buffer
	Size   uint64
}

// NewBindGroup binds buffers to consecutive bindings starting at 0.
func (p *PrimitivePipeline) NewBindGroup(label string, bindings ...UniformBinding) (hal.BindGroup, error) {
	entries := make([]gputypes.BindGroupEntry, len(bindings))
	for i, b := range bindings {
		entries[i] = gputypes.BindGroupEntry{
			Binding: uint32(i),
			Resource: gputypes.BufferBinding{
				Buffer: b.Buffer.NativeHandle(), Offset: 0, Size: b.Size,
			},
		}
	}
	bg, err := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   label,
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group %s: %w", label, err)
	}
	return bg, nil
}

// Kind returns the pipeline kind.
func (p *PrimitivePipeline) Kind() PrimitiveKind { return p.kind }

// Pipeline returns the render pipeline.
func (p *PrimitivePipeline) Pipeline() hal.RenderPipeline { return p.pipeline }

// BindGroupLayout returns the uniform bind group layout.
func (p *PrimitivePipeline) BindGroupLayout() hal.BindGroupLayout { return p.bindLayout }

// Destroy releases pipeline resources in reverse creation order.
func (p *PrimitivePipeline) Destroy() {
	if p.device == nil {
		return
	}
	if p.pipeline != nil {
		p.device.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		p.device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	p.shader = nil
}
