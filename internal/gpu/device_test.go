// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"fmt"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/require"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	require.NoError(t, err, "CreateInstance")
	adapters := instance.EnumerateAdapters(nil)
	require.NotEmpty(t, adapters)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		require.NoError(t, err, "Open")
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// countingDevice wraps a device, counts destroyed buffers and records the
// order of fence waits, command buffer frees, buffer destruction and the
// viewport and scissor set on render passes.
type countingDevice struct {
	hal.Device
	destroyed map[hal.Buffer]int
	events    []string

	stuck       bool // fence waits time out
	lastTimeout time.Duration
}

func newCountingDevice(d hal.Device) *countingDevice {
	return &countingDevice{Device: d, destroyed: make(map[hal.Buffer]int)}
}

func (d *countingDevice) DestroyBuffer(b hal.Buffer) {
	d.destroyed[b]++
	d.events = append(d.events, "destroy")
	d.Device.DestroyBuffer(b)
}

func (d *countingDevice) Wait(fence hal.Fence, value uint64, timeout time.Duration) (bool, error) {
	d.lastTimeout = timeout
	d.events = append(d.events, "wait")
	if d.stuck {
		return false, nil
	}
	return d.Device.Wait(fence, value, timeout)
}

func (d *countingDevice) FreeCommandBuffer(cmd hal.CommandBuffer) {
	d.events = append(d.events, "free")
	d.Device.FreeCommandBuffer(cmd)
}

func (d *countingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &recordingEncoder{CommandEncoder: enc, device: d}, nil
}

type recordingEncoder struct {
	hal.CommandEncoder
	device *countingDevice
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	return &recordingPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), device: e.device}
}

type recordingPass struct {
	hal.RenderPassEncoder
	device *countingDevice
}

func (p *recordingPass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.device.events = append(p.device.events, fmt.Sprintf("viewport %gx%g", width, height))
	p.RenderPassEncoder.SetViewport(x, y, width, height, minDepth, maxDepth)
}

func (p *recordingPass) SetScissorRect(x, y, width, height uint32) {
	p.device.events = append(p.device.events, fmt.Sprintf("scissor %dx%d", width, height))
	p.RenderPassEncoder.SetScissorRect(x, y, width, height)
}

func createTestBuffer(t *testing.T, device hal.Device, label string) hal.Buffer {
	t.Helper()
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  64,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	require.NoError(t, err, "CreateBuffer(%s)", label)
	return buf
}
