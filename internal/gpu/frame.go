// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Frame cycle errors.
var (
	// ErrFrameInProgress is returned by Begin while a frame is open.
	ErrFrameInProgress = errors.New("gpu: frame already in progress")

	// ErrFrameEnded is returned when recording into a frame that has ended.
	ErrFrameEnded = errors.New("gpu: frame has ended")

	// ErrForeignFrame is returned when ending a frame of another cycle.
	ErrForeignFrame = errors.New("gpu: frame belongs to a different cycle")

	// ErrDevice wraps every failure reported by the device or swapchain.
	ErrDevice = errors.New("gpu: device error")

	// ErrDeviceLost is returned by Begin after a device error.
	ErrDeviceLost = errors.New("gpu: device lost")

	// ErrFenceTimeout means the frame fence did not signal in time.
	ErrFenceTimeout = errors.New("gpu: fence wait timed out")
)

// waitForever is the fence timeout used when the cycle has none configured.
const waitForever = time.Duration(1<<63 - 1)

// lostWaitTimeout bounds the idle wait of Destroy after a device error.
const lostWaitTimeout = 2 * time.Second

// FrameState is the position of the frame cycle.
type FrameState int

const (
	// FrameIdle means no frame is open.
	FrameIdle FrameState = iota
	// FrameAcquiring means the cycle waits for a presentation target.
	FrameAcquiring
	// FrameRecording means the render pass is open for draw calls.
	FrameRecording
	// FrameSubmitted means the command buffer was handed to the queue.
	FrameSubmitted
	// FramePresenting means the target is being presented and the cycle
	// waits for the frame fence.
	FramePresenting
	// FrameLost means a device error ended the cycle for good.
	FrameLost
)

// String returns the state name.
func (s FrameState) String() string {
	switch s {
	case FrameIdle:
		return "Idle"
	case FrameAcquiring:
		return "Acquiring"
	case FrameRecording:
		return "Recording"
	case FrameSubmitted:
		return "Submitted"
	case FramePresenting:
		return "Presenting"
	case FrameLost:
		return "Lost"
	default:
		return fmt.Sprintf("FrameState(%d)", int(s))
	}
}

// ClearColor is the color every frame starts with.
var ClearColor = gputypes.Color{R: 0, G: 0, B: 0, A: 1}

// FrameCycle runs frames strictly one after another:
//
//	Idle -> Acquiring -> Recording -> Submitted -> Presenting -> Idle
//
// End does not return before the frame fence has signaled, so at most one
// frame is in flight. Submission order on the queue places the frame after
// its acquire and before its present. Buffers retired while a frame is
// open are destroyed once that frame has completed.
//
// FrameCycle is not safe for concurrent use.
type FrameCycle struct {
	device    hal.Device
	queue     hal.Queue
	swapchain Swapchain
	depth     *DepthTarget
	reclaim   *ReclaimQueue

	fence      hal.Fence
	fenceValue uint64
	timeout    time.Duration

	state   FrameState
	current *Frame
	frames  uint64
}

// NewFrameCycle creates the frame fence. depth may be nil for passes
// without a depth attachment. A zero timeout waits without bound.
func NewFrameCycle(device hal.Device, queue hal.Queue, swapchain Swapchain, depth *DepthTarget, reclaim *ReclaimQueue, timeout time.Duration) (*FrameCycle, error) {
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("%w: create frame fence: %w", ErrDevice, err)
	}
	if reclaim == nil {
		reclaim = NewReclaimQueue(device)
	}
	return &FrameCycle{
		device:    device,
		queue:     queue,
		swapchain: swapchain,
		depth:     depth,
		reclaim:   reclaim,
		fence:     fence,
		timeout:   timeout,
	}, nil
}

// State returns the current state.
func (c *FrameCycle) State() FrameState { return c.state }

// Frames returns the number of frames that completed.
func (c *FrameCycle) Frames() uint64 { return c.frames }

// Reclaim returns the queue drained after every frame.
func (c *FrameCycle) Reclaim() *ReclaimQueue { return c.reclaim }

// Current returns the open frame, or nil.
func (c *FrameCycle) Current() *Frame { return c.current }

func (c *FrameCycle) setState(s FrameState) {
	slogger().Debug("gpu: frame state", "from", c.state, "to", s, "frame", c.frames)
	c.state = s
}

// fail marks the cycle lost and wraps err as a device error.
func (c *FrameCycle) fail(op string, err error) error {
	c.setState(FrameLost)
	c.current = nil
	slogger().Error("gpu: device error", "op", op, "err", err)
	return fmt.Errorf("%w: %s: %w", ErrDevice, op, err)
}

func (c *FrameCycle) waitTimeout() time.Duration {
	if c.timeout <= 0 {
		return waitForever
	}
	return c.timeout
}

// Begin acquires the next presentation target and opens the frame's render
// pass, cleared to ClearColor and depth 1.0.
func (c *FrameCycle) Begin() (*Frame, error) {
	switch c.state {
	case FrameIdle:
	case FrameLost:
		return nil, ErrDeviceLost
	default:
		return nil, fmt.Errorf("%w: state %s", ErrFrameInProgress, c.state)
	}

	c.setState(FrameAcquiring)
	index, view, err := c.swapchain.AcquireNextImage(c.timeout)
	if err != nil {
		return nil, c.fail("acquire next image", err)
	}

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "frame_encoder",
	})
	if err != nil {
		return nil, c.fail("create command encoder", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		return nil, c.fail("begin encoding", err)
	}

	rpDesc := &hal.RenderPassDescriptor{
		Label: "frame_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: ClearColor,
		}},
	}
	if c.depth != nil && c.depth.View() != nil {
		rpDesc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              c.depth.View(),
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpDiscard,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		}
	}

	pass := encoder.BeginRenderPass(rpDesc)
	w, h := c.swapchain.Extent()
	pass.SetViewport(0, 0, float32(w), float32(h), 0, 1)
	pass.SetScissorRect(0, 0, w, h)

	f := &Frame{
		cycle:   c,
		index:   index,
		view:    view,
		encoder: encoder,
		pass:    pass,
	}
	c.current = f
	c.setState(FrameRecording)
	return f, nil
}

// End closes the render pass, submits the frame, presents it, waits for
// the frame fence and then drains the reclaim queue. A failed present still
// waits for the fence; if the fence never signals, the frame's command
// buffer and pending buffers are kept.
func (c *FrameCycle) End(f *Frame) error {
	if f == nil || f.ended {
		return ErrFrameEnded
	}
	if f.cycle != c || c.current != f {
		return ErrForeignFrame
	}
	f.ended = true
	f.pass.End()

	cmd, err := f.encoder.EndEncoding()
	if err != nil {
		return c.fail("end encoding", err)
	}

	c.fenceValue++
	if err := c.queue.Submit([]hal.CommandBuffer{cmd}, c.fence, c.fenceValue); err != nil {
		c.device.FreeCommandBuffer(cmd)
		return c.fail("submit", err)
	}
	c.setState(FrameSubmitted)

	c.setState(FramePresenting)
	presentErr := c.swapchain.Present(f.index)

	// The command buffer and every retired buffer stay alive until the
	// fence confirms the submission completed, even if present failed.
	if err := c.waitFence(); err != nil {
		if presentErr != nil {
			return c.fail("present", errors.Join(presentErr, err))
		}
		return c.fail("wait frame fence", err)
	}
	c.device.FreeCommandBuffer(cmd)
	c.reclaim.DrainAndDestroy()
	c.current = nil
	if presentErr != nil {
		return c.fail("present", presentErr)
	}

	c.frames++
	c.setState(FrameIdle)
	return nil
}

func (c *FrameCycle) waitFence() error {
	ok, err := c.device.Wait(c.fence, c.fenceValue, c.waitTimeout())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: value %d", ErrFenceTimeout, c.fenceValue)
	}
	return nil
}

// WaitIdle blocks until all submitted work has completed, using an empty
// submission on the frame fence.
func (c *FrameCycle) WaitIdle() error {
	return c.waitIdle(c.waitTimeout())
}

func (c *FrameCycle) waitIdle(timeout time.Duration) error {
	c.fenceValue++
	if err := c.queue.Submit(nil, c.fence, c.fenceValue); err != nil {
		return fmt.Errorf("%w: idle submit: %w", ErrDevice, err)
	}
	ok, err := c.device.Wait(c.fence, c.fenceValue, timeout)
	if err != nil {
		return fmt.Errorf("%w: idle wait: %w", ErrDevice, err)
	}
	if !ok {
		return fmt.Errorf("%w: idle wait: %w: value %d", ErrDevice, ErrFenceTimeout, c.fenceValue)
	}
	return nil
}

// Destroy abandons an open frame without submitting it, waits for the
// device, reclaims pending buffers and releases the fence.
//
// After a device error the wait is bounded by lostWaitTimeout. When the
// device cannot confirm that submitted work completed, pending buffers are
// left undestroyed and Destroy returns an ErrDevice error; the caller must
// not release objects a submission may still reference.
func (c *FrameCycle) Destroy() error {
	if c.fence == nil {
		return nil
	}
	if f := c.current; f != nil && !f.ended {
		f.ended = true
		f.pass.End()
		f.encoder.DiscardEncoding()
		c.current = nil
	}

	timeout := c.waitTimeout()
	if c.state == FrameLost && timeout > lostWaitTimeout {
		timeout = lostWaitTimeout
	}
	if err := c.waitIdle(timeout); err != nil {
		slogger().Warn("gpu: device not idle on destroy, leaking pending buffers",
			"pending", c.reclaim.Len(), "err", err)
		return err
	}
	c.reclaim.DrainAndDestroy()
	c.device.DestroyFence(c.fence)
	c.fence = nil
	if c.state != FrameLost {
		c.state = FrameIdle
	}
	return nil
}

// Frame is one open frame. Draw calls recorded on it go into a single
// render pass.
type Frame struct {
	cycle   *FrameCycle
	index   uint32
	view    hal.TextureView
	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder
	ended   bool
	draws   int
}

// ImageIndex returns the swapchain image the frame renders into.
func (f *Frame) ImageIndex() uint32 { return f.index }

// Draws returns the number of draw calls recorded.
func (f *Frame) Draws() int { return f.draws }

// SetPipeline binds p for subsequent draws.
func (f *Frame) SetPipeline(p hal.RenderPipeline) error {
	if f.ended {
		return ErrFrameEnded
	}
	f.pass.SetPipeline(p)
	return nil
}

// SetBindGroup binds group at index for subsequent draws.
func (f *Frame) SetBindGroup(index uint32, group hal.BindGroup, dynamicOffsets []uint32) error {
	if f.ended {
		return ErrFrameEnded
	}
	f.pass.SetBindGroup(index, group, dynamicOffsets)
	return nil
}

// Draw records a non-indexed draw of vertexCount vertices from buf.
func (f *Frame) Draw(buf hal.Buffer, vertexCount uint32) error {
	if f.ended {
		return ErrFrameEnded
	}
	f.pass.SetVertexBuffer(0, buf, 0)
	f.pass.Draw(vertexCount, 1, 0, 0)
	f.draws++
	return nil
}
