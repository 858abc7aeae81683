// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/wgpu/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameFixture struct {
	device    *countingDevice
	queue     hal.Queue
	swapchain *OffscreenSwapchain
	depth     *DepthTarget
	cycle     *FrameCycle
}

// newFrameFixture builds a 64x48 cycle. wrap, when non-nil, replaces the
// swapchain the cycle presents into.
func newFrameFixture(t *testing.T, wrap func(*OffscreenSwapchain) Swapchain) *frameFixture {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	cd := newCountingDevice(device)

	sc, err := NewOffscreenSwapchain(cd, 64, 48, 2)
	if err != nil {
		cleanup()
		require.NoError(t, err, "NewOffscreenSwapchain")
	}
	depth := &DepthTarget{}
	if err := depth.Ensure(cd, 64, 48); err != nil {
		cleanup()
		require.NoError(t, err, "depth Ensure")
	}
	var target Swapchain = sc
	if wrap != nil {
		target = wrap(sc)
	}
	cycle, err := NewFrameCycle(cd, queue, target, depth, NewReclaimQueue(cd), 0)
	if err != nil {
		cleanup()
		require.NoError(t, err, "NewFrameCycle")
	}
	t.Cleanup(func() {
		cd.stuck = false
		_ = cycle.Destroy()
		depth.Destroy(cd)
		sc.Destroy()
		cleanup()
	})
	return &frameFixture{device: cd, queue: queue, swapchain: sc, depth: depth, cycle: cycle}
}

func TestFrameStateString(t *testing.T) {
	tests := []struct {
		state FrameState
		want  string
	}{
		{FrameIdle, "Idle"},
		{FrameAcquiring, "Acquiring"},
		{FrameRecording, "Recording"},
		{FrameSubmitted, "Submitted"},
		{FramePresenting, "Presenting"},
		{FrameLost, "Lost"},
		{FrameState(42), "FrameState(42)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestFrameCycleRoundTrip(t *testing.T) {
	fx := newFrameFixture(t, nil)
	c := fx.cycle

	require.Equal(t, FrameIdle, c.State())
	for i := range 3 {
		f, err := c.Begin()
		require.NoError(t, err, "frame %d: Begin", i)
		assert.Equal(t, FrameRecording, c.State(), "frame %d", i)
		assert.Equal(t, uint32(i%2), f.ImageIndex(), "frame %d", i)
		require.NoError(t, c.End(f), "frame %d: End", i)
		assert.Equal(t, FrameIdle, c.State(), "frame %d", i)
	}
	assert.Equal(t, uint64(3), c.Frames())
	assert.Equal(t, uint64(3), fx.swapchain.Presents())
}

func TestFrameCycleSetsViewportToExtent(t *testing.T) {
	fx := newFrameFixture(t, nil)
	fx.device.events = nil

	f, err := fx.cycle.Begin()
	require.NoError(t, err)
	assert.Equal(t, []string{"viewport 64x48", "scissor 64x48"}, fx.device.events)
	require.NoError(t, fx.cycle.End(f))
}

func TestFrameCycleSingleRecordingScope(t *testing.T) {
	fx := newFrameFixture(t, nil)
	c := fx.cycle

	f, err := c.Begin()
	require.NoError(t, err)
	_, err = c.Begin()
	assert.ErrorIs(t, err, ErrFrameInProgress)

	require.NoError(t, c.End(f))
	assert.ErrorIs(t, c.End(f), ErrFrameEnded)
	assert.ErrorIs(t, c.End(nil), ErrFrameEnded)
}

func TestFrameRecordingAfterEnd(t *testing.T) {
	fx := newFrameFixture(t, nil)
	c := fx.cycle
	buf := createTestBuffer(t, fx.device, "verts")
	defer fx.device.DestroyBuffer(buf)

	f, err := c.Begin()
	require.NoError(t, err)
	require.NoError(t, f.Draw(buf, 3))
	assert.Equal(t, 1, f.Draws())
	require.NoError(t, c.End(f))

	assert.ErrorIs(t, f.Draw(buf, 3), ErrFrameEnded)
	assert.ErrorIs(t, f.SetPipeline(nil), ErrFrameEnded)
	assert.ErrorIs(t, f.SetBindGroup(0, nil, nil), ErrFrameEnded)
}

func TestFrameCycleReclaimsAfterFrame(t *testing.T) {
	fx := newFrameFixture(t, nil)
	c := fx.cycle

	f, err := c.Begin()
	require.NoError(t, err)
	retired := createTestBuffer(t, fx.device, "retired")
	mem := &countedMemory{}
	require.NoError(t, f.Draw(retired, 3))
	c.Reclaim().Enqueue(retired, mem)

	// Still referenced by the open frame.
	require.Zero(t, fx.device.destroyed[retired], "destroyed before the frame completed")

	require.NoError(t, c.End(f))
	assert.Equal(t, 1, fx.device.destroyed[retired])
	assert.Equal(t, 1, mem.frees)
	assert.Zero(t, c.Reclaim().Len())

	// Next frame must not touch it again.
	f, err = c.Begin()
	require.NoError(t, err)
	require.NoError(t, c.End(f))
	assert.Equal(t, 1, fx.device.destroyed[retired])
}

// failingSwapchain fails to acquire.
type failingSwapchain struct {
	Swapchain
	err error
}

func (s failingSwapchain) AcquireNextImage(time.Duration) (uint32, hal.TextureView, error) {
	return 0, nil, s.err
}

// presentFailingSwapchain acquires normally but fails to present.
type presentFailingSwapchain struct {
	*OffscreenSwapchain
	err error
}

func (s presentFailingSwapchain) Present(uint32) error { return s.err }

func TestFrameCycleDeviceErrorIsTerminal(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	acquireErr := errors.New("out of date")
	c, err := NewFrameCycle(device, queue, failingSwapchain{err: acquireErr}, nil, nil, time.Second)
	require.NoError(t, err)
	defer c.Destroy()

	_, err = c.Begin()
	require.ErrorIs(t, err, ErrDevice)
	require.ErrorIs(t, err, acquireErr)
	assert.Equal(t, FrameLost, c.State())

	_, err = c.Begin()
	assert.ErrorIs(t, err, ErrDeviceLost)
}

func TestFrameCyclePresentFailureWaitsBeforeReclaim(t *testing.T) {
	presentErr := errors.New("surface lost")
	fx := newFrameFixture(t, func(sc *OffscreenSwapchain) Swapchain {
		return presentFailingSwapchain{OffscreenSwapchain: sc, err: presentErr}
	})
	c := fx.cycle

	f, err := c.Begin()
	require.NoError(t, err)
	retired := createTestBuffer(t, fx.device, "retired")
	mem := &countedMemory{}
	require.NoError(t, f.Draw(retired, 3))
	c.Reclaim().Enqueue(retired, mem)
	fx.device.events = nil

	err = c.End(f)
	require.ErrorIs(t, err, ErrDevice)
	require.ErrorIs(t, err, presentErr)
	assert.Equal(t, FrameLost, c.State())

	// The submission completed, so the frame's resources go in order.
	assert.Equal(t, []string{"wait", "free", "destroy"}, fx.device.events)
	assert.Equal(t, 1, fx.device.destroyed[retired])
	assert.Equal(t, 1, mem.frees)

	require.NoError(t, c.Destroy())
	assert.Equal(t, 1, fx.device.destroyed[retired], "Destroy must not free it twice")
}

func TestFrameCycleUnconfirmedFenceKeepsPending(t *testing.T) {
	fx := newFrameFixture(t, nil)
	c := fx.cycle

	f, err := c.Begin()
	require.NoError(t, err)
	retired := createTestBuffer(t, fx.device, "retired")
	mem := &countedMemory{}
	require.NoError(t, f.Draw(retired, 3))
	c.Reclaim().Enqueue(retired, mem)

	fx.device.stuck = true
	err = c.End(f)
	require.ErrorIs(t, err, ErrDevice)
	require.ErrorIs(t, err, ErrFenceTimeout)
	assert.Equal(t, FrameLost, c.State())
	assert.Zero(t, fx.device.destroyed[retired])

	err = c.Destroy()
	require.ErrorIs(t, err, ErrDevice)
	assert.Equal(t, lostWaitTimeout, fx.device.lastTimeout, "idle wait after loss is bounded")
	assert.Zero(t, fx.device.destroyed[retired])
	assert.Zero(t, mem.frees)
	assert.Equal(t, 1, c.Reclaim().Len())
}

func TestFrameCycleForeignFrame(t *testing.T) {
	a := newFrameFixture(t, nil)
	b := newFrameFixture(t, nil)

	fa, err := a.cycle.Begin()
	require.NoError(t, err)
	assert.ErrorIs(t, b.cycle.End(fa), ErrForeignFrame)
	require.NoError(t, a.cycle.End(fa))
}

func TestFrameCycleDestroyAbandonsOpenFrame(t *testing.T) {
	fx := newFrameFixture(t, nil)
	c := fx.cycle

	_, err := c.Begin()
	require.NoError(t, err)
	retired := createTestBuffer(t, fx.device, "retired")
	c.Reclaim().Enqueue(retired, nil)

	require.NoError(t, c.Destroy())
	assert.Nil(t, c.Current(), "open frame dropped")
	assert.Equal(t, 1, fx.device.destroyed[retired])

	// Destroy is idempotent; the fixture cleanup calls it again.
	assert.NoError(t, c.Destroy())
}

func TestFrameCycleWaitIdle(t *testing.T) {
	fx := newFrameFixture(t, nil)
	assert.NoError(t, fx.cycle.WaitIdle())
}
