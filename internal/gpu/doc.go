// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu holds the HAL-level building blocks of the render manager.
//
// The package is internal: render.Manager composes these pieces and is the
// only public entry point.
//
// # Frame cycle
//
// FrameCycle drives one frame at a time through
//
//	Idle -> Acquiring -> Recording -> Submitted -> Presenting -> Idle
//
// Begin acquires a swapchain image and opens the render pass, End submits
// with the present fence, presents, waits for the fence and then drains the
// ReclaimQueue. Any device error moves the cycle to Lost, which is terminal.
//
// # Deferred reclamation
//
// Buffers still referenced by a recorded command buffer cannot be destroyed
// immediately. ReclaimQueue.Enqueue parks a buffer together with its host
// memory; DrainAndDestroy frees them once the frame that used them has
// completed on the GPU.
//
// # Pipelines
//
// PrimitivePipeline builds the 2D and 3D primitive pipelines from the
// embedded WGSL sources. ShaderCache compiles each source once, as WGSL or
// as SPIR-V through naga.
package gpu
