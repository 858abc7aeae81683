// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package render

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bbe "github.com/Brotcrunsher/BrotboxEngine"
	"github.com/Brotcrunsher/BrotboxEngine/arena"
	"github.com/Brotcrunsher/BrotboxEngine/internal/gpu"
)

// createNoopDevice creates a noop device and queue for testing.
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

// halHost is a DeviceHandle that also exposes HAL objects.
type halHost struct {
	NullDeviceHandle
	device any
	queue  any
}

func (h halHost) HalDevice() any { return h.device }
func (h halHost) HalQueue() any  { return h.queue }

// destroyCounter counts destroyed buffers. With stuck set, fence waits
// time out.
type destroyCounter struct {
	hal.Device
	destroyed map[hal.Buffer]int
	stuck     bool
}

func newDestroyCounter(d hal.Device) *destroyCounter {
	return &destroyCounter{Device: d, destroyed: make(map[hal.Buffer]int)}
}

func (d *destroyCounter) DestroyBuffer(b hal.Buffer) {
	d.destroyed[b]++
	d.Device.DestroyBuffer(b)
}

func (d *destroyCounter) Wait(fence hal.Fence, value uint64, timeout time.Duration) (bool, error) {
	if d.stuck {
		return false, nil
	}
	return d.Device.Wait(fence, value, timeout)
}

func testSettings() bbe.Settings {
	s := bbe.DefaultSettings()
	s.Window.Width = 64
	s.Window.Height = 48
	s.Render.TransformContainers = 3
	return s
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *destroyCounter) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	dc := newDestroyCounter(device)
	m, err := New(dc, queue, testSettings(), opts...)
	if err != nil {
		cleanup()
		require.NoError(t, err, "New")
	}
	t.Cleanup(func() {
		m.Close()
		cleanup()
	})
	return m, dc
}

func triangle2D() []byte {
	return encodeFloats(0, 0.5, -0.5, -0.5, 0.5, -0.5)
}

// drawRetired records one frame that draws buf and retires it while the
// frame is open. The frame is left open.
func drawRetired(t *testing.T, m *Manager, buf hal.Buffer, mem gpu.MemoryHandle) {
	t.Helper()
	require.NoError(t, m.BeginFrame())
	require.NoError(t, m.PreDraw2D())
	require.NoError(t, m.Draw(buf, 3))
	m.RetireBuffer(buf, mem)
}

func TestManagerSingleton(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	m, err := New(device, queue, testSettings())
	require.NoError(t, err)
	_, err = New(device, queue, testSettings())
	require.ErrorIs(t, err, ErrSingletonViolation)

	m.Close()
	m.Close()

	m2, err := New(device, queue, testSettings())
	require.NoError(t, err, "New after Close")
	m2.Close()
}

func TestManagerInvalidSettingsFreesSlot(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	s := testSettings()
	s.Render.ShaderFormat = "hlsl"
	_, err := New(device, queue, s)
	require.ErrorIs(t, err, bbe.ErrInvalidSettings)

	m, err := New(device, queue, testSettings())
	require.NoError(t, err, "New after failed New")
	m.Close()
}

func TestNewFromProvider(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	_, err := NewFromProvider(NullDeviceHandle{}, testSettings())
	require.ErrorIs(t, err, ErrNoHALDevice)

	m, err := NewFromProvider(halHost{device: device, queue: queue}, testSettings())
	require.NoError(t, err)
	m.Close()
}

func TestManagerInit(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Equal(t, 3, m.TransformContainers())
	st := m.Stats()
	assert.Equal(t, "Idle", st.State)
	assert.Equal(t, 2, st.ShaderModules)
	assert.Equal(t, 64, m.Settings().Window.Width)
}

func TestManagerFrame(t *testing.T) {
	m, _ := newTestManager(t)

	buf, mem, err := m.CreateVertexBuffer(triangle2D())
	require.NoError(t, err)
	defer m.RetireBuffer(buf, mem)

	for i := range 3 {
		require.NoError(t, m.BeginFrame(), "frame %d", i)
		require.NoError(t, m.SetColor2D(1, 0, 0, 1))
		require.NoError(t, m.PreDraw2D())
		require.NoError(t, m.Draw(buf, 3))
		require.NoError(t, m.PreDraw3D(2))
		require.NoError(t, m.EndFrame(), "frame %d", i)
	}
	assert.Equal(t, uint64(3), m.Stats().Frames)
}

func TestManagerDrawOutsideFrame(t *testing.T) {
	m, _ := newTestManager(t)

	assert.ErrorIs(t, m.PreDraw2D(), ErrNoFrame)
	assert.ErrorIs(t, m.PreDraw3D(0), ErrNoFrame)
	assert.ErrorIs(t, m.Draw(nil, 3), ErrNoFrame)
	assert.ErrorIs(t, m.EndFrame(), ErrNoFrame)

	require.NoError(t, m.BeginFrame())
	assert.ErrorIs(t, m.BeginFrame(), gpu.ErrFrameInProgress)
	assert.ErrorIs(t, m.PreDraw3D(3), ErrTransformIndex)
	require.NoError(t, m.EndFrame())
}

func TestManagerRetiredBufferOutlivesFrame(t *testing.T) {
	m, dc := newTestManager(t)

	buf, mem, err := m.CreateVertexBuffer(triangle2D())
	require.NoError(t, err)
	drawRetired(t, m, buf, mem)

	require.Zero(t, dc.destroyed[buf], "destroyed while its frame was still open")
	assert.Equal(t, 1, m.Stats().PendingReclaim)

	require.NoError(t, m.EndFrame())
	assert.Equal(t, 1, dc.destroyed[buf])
	st := m.Stats()
	assert.Zero(t, st.PendingReclaim)
	assert.Equal(t, uint64(1), st.BuffersReclaimed)
	assert.Equal(t, uint64(1), st.BuffersRetired)
	assert.Equal(t, uint64(1), st.BuffersCreated)
}

func TestManagerCloseReclaimsPending(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	dc := newDestroyCounter(device)
	heap := arena.NewHeapAllocator()

	m, err := New(dc, queue, testSettings(), WithStagingAllocator(heap))
	require.NoError(t, err)
	buf, mem, err := m.CreateVertexBuffer(triangle2D())
	require.NoError(t, err)
	blocks, _ := heap.Live()
	require.Equal(t, 1, blocks)

	require.NoError(t, m.BeginFrame())
	m.RetireBuffer(buf, mem)

	// Close with an open frame abandons it and still reclaims.
	m.Close()
	assert.Equal(t, 1, dc.destroyed[buf])
	blocks, _ = heap.Live()
	assert.Zero(t, blocks)

	assert.ErrorIs(t, m.BeginFrame(), ErrClosed)
	_, _, err = m.CreateVertexBuffer([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManagerRetireAfterClose(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	dc := newDestroyCounter(device)
	heap := arena.NewHeapAllocator()

	m, err := New(dc, queue, testSettings(), WithStagingAllocator(heap))
	require.NoError(t, err)
	buf, mem, err := m.CreateVertexBuffer(triangle2D())
	require.NoError(t, err)
	m.Close()

	m.RetireBuffer(buf, mem)
	assert.Equal(t, 1, dc.destroyed[buf])
	blocks, _ := heap.Live()
	assert.Zero(t, blocks, "staging block returned to the borrowed allocator")
}

func TestManagerUniformWrites(t *testing.T) {
	m, _ := newTestManager(t)

	assert.NoError(t, m.WriteCamera(identity))
	assert.NoError(t, m.WriteTransform(2, identity, [4]float32{0, 1, 0, 1}))
	assert.ErrorIs(t, m.WriteTransform(-1, identity, [4]float32{}), ErrTransformIndex)
	_, _, err := m.CreateVertexBuffer(nil)
	assert.ErrorIs(t, err, ErrEmptyBuffer)
}

// lostSwapchain presents nothing.
type lostSwapchain struct {
	*gpu.OffscreenSwapchain
}

func (lostSwapchain) Present(uint32) error { return errors.New("surface lost") }

func TestManagerDeviceErrorIsTerminal(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	dc := newDestroyCounter(device)
	heap := arena.NewHeapAllocator()

	sc, err := gpu.NewOffscreenSwapchain(dc, 16, 16, 1)
	require.NoError(t, err)
	m, err := New(dc, queue, testSettings(),
		WithSwapchain(lostSwapchain{sc}), WithStagingAllocator(heap))
	require.NoError(t, err)
	defer m.Close()

	buf, mem, err := m.CreateVertexBuffer(triangle2D())
	require.NoError(t, err)
	drawRetired(t, m, buf, mem)

	err = m.EndFrame()
	require.True(t, IsDeviceError(err), "EndFrame error = %v", err)

	// The submission was confirmed complete before the buffer went away.
	assert.Equal(t, 1, dc.destroyed[buf])
	blocks, _ := heap.Live()
	assert.Zero(t, blocks)

	assert.ErrorIs(t, m.BeginFrame(), gpu.ErrDeviceLost)
	assert.Equal(t, "Lost", m.Stats().State)

	m.Close()
	assert.Equal(t, 1, dc.destroyed[buf], "Close must not destroy it again")
}

func TestManagerCloseLeaksWhenDeviceBusy(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	dc := newDestroyCounter(device)
	heap := arena.NewHeapAllocator()

	m, err := New(dc, queue, testSettings(), WithStagingAllocator(heap))
	require.NoError(t, err)

	buf, mem, err := m.CreateVertexBuffer(triangle2D())
	require.NoError(t, err)
	drawRetired(t, m, buf, mem)

	dc.stuck = true
	err = m.EndFrame()
	require.True(t, IsDeviceError(err), "EndFrame error = %v", err)
	require.ErrorIs(t, err, gpu.ErrFenceTimeout)

	m.Close()
	assert.Empty(t, dc.destroyed, "nothing may be destroyed while submitted work is unconfirmed")

	late, err := dc.CreateBuffer(&hal.BufferDescriptor{
		Label: "late",
		Size:  16,
		Usage: gputypes.BufferUsageVertex,
	})
	require.NoError(t, err)
	lateMem := gpu.NewHostMemory(heap, []byte{1, 2, 3})
	m.RetireBuffer(late, lateMem)
	assert.Zero(t, dc.destroyed[late])
	blocks, _ := heap.Live()
	assert.Equal(t, 1, blocks, "only the unconfirmed frame's staging block stays live")
}

func TestEncodeFloats(t *testing.T) {
	want := []byte{0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0xc0}
	assert.Equal(t, want, encodeFloats(1, -2))
}
