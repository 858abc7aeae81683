// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render owns the engine's GPU rendering context.
//
// A [Manager] is created once per process from a HAL device and queue
// (or a [DeviceHandle] that exposes them). A second live Manager is
// refused with [ErrSingletonViolation]; pass the Manager explicitly to the
// code that draws.
//
// # Initialization
//
// New creates, in order: the swapchain images, the depth target, the frame
// fence, the shader cache, the 2D and 3D primitive pipelines, the camera
// uniform buffer, and one transform uniform buffer with bind group per
// transform container. Close releases them in reverse order after waiting
// for the device.
//
// # Frames
//
//	if err := m.BeginFrame(); err != nil { ... }
//	m.PreDraw3D(0)
//	m.Draw(mesh, vertexCount)
//	m.PreDraw2D()
//	m.Draw(overlay, 6)
//	if err := m.EndFrame(); err != nil { ... }
//
// EndFrame returns after the frame fence signaled. Exactly one frame is in
// flight at a time.
//
// # Buffer lifetime
//
// Buffers handed to [Manager.RetireBuffer] are not destroyed immediately:
// the frame that is open (or the next one) may still read them. They are
// destroyed, together with their host staging memory, after that frame has
// completed on the GPU.
//
// # Errors
//
// Device failures are returned wrapped in gpu.ErrDevice (see [IsDeviceError])
// and leave the Manager unusable for further frames. There is no retry.
package render
