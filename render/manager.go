// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package render

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	bbe "github.com/Brotcrunsher/BrotboxEngine"
	"github.com/Brotcrunsher/BrotboxEngine/arena"
	"github.com/Brotcrunsher/BrotboxEngine/internal/gpu"
)

// Manager errors.
var (
	// ErrSingletonViolation is returned by New while another Manager is live.
	ErrSingletonViolation = errors.New("render: a manager is already live")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("render: manager closed")

	// ErrNoFrame is returned by draw calls outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("render: no frame in progress")

	// ErrTransformIndex is returned for a transform container out of range.
	ErrTransformIndex = errors.New("render: transform container out of range")

	// ErrEmptyBuffer is returned when creating a buffer from no data.
	ErrEmptyBuffer = errors.New("render: empty buffer data")
)

// IsDeviceError reports whether err came from a failed device operation.
func IsDeviceError(err error) bool { return errors.Is(err, gpu.ErrDevice) }

// live guards the one-manager-per-process rule.
var live atomic.Bool

// Option configures a Manager during creation.
type Option func(*managerOptions)

type managerOptions struct {
	swapchain gpu.Swapchain
	staging   arena.Allocator
}

// WithSwapchain presents into s instead of an offscreen image ring.
// The Manager takes ownership and destroys s on Close.
func WithSwapchain(s gpu.Swapchain) Option {
	return func(o *managerOptions) {
		o.swapchain = s
	}
}

// WithStagingAllocator sets the allocator for host copies of uploaded
// buffers. The Manager borrows it. By default it creates and owns an
// arena.HeapAllocator.
func WithStagingAllocator(a arena.Allocator) Option {
	return func(o *managerOptions) {
		o.staging = a
	}
}

// Stats is a snapshot of Manager counters.
type Stats struct {
	Frames           uint64
	State            string
	BuffersCreated   uint64
	BuffersRetired   uint64
	BuffersReclaimed uint64
	PendingReclaim   int
	ShaderModules    int
}

// Manager is the rendering context: it owns every GPU object the engine
// draws with and runs the frame cycle. It is not safe for concurrent use.
type Manager struct {
	settings bbe.Settings
	device   hal.Device
	queue    hal.Queue

	staging     arena.Allocator
	ownsStaging bool

	swapchain gpu.Swapchain
	depth     gpu.DepthTarget
	reclaim   *gpu.ReclaimQueue
	cycle     *gpu.FrameCycle
	shaders   *gpu.ShaderCache

	pipeline2D *gpu.PrimitivePipeline
	pipeline3D *gpu.PrimitivePipeline

	colorUBO      hal.Buffer
	cameraUBO     hal.Buffer
	transformUBOs []hal.Buffer
	bindGroup2D   hal.BindGroup
	bindGroups3D  []hal.BindGroup

	frame   *gpu.Frame
	created uint64
	retired uint64
	closed  bool
	busy    bool // closed without the device confirming idle
}

// NewFromProvider creates the Manager on the HAL device exposed by provider.
func NewFromProvider(provider DeviceHandle, s bbe.Settings, opts ...Option) (*Manager, error) {
	device, queue, err := halFromProvider(provider)
	if err != nil {
		return nil, err
	}
	return New(device, queue, s, opts...)
}

// New creates the process-wide Manager. It fails with ErrSingletonViolation
// while another Manager has not been closed.
func New(device hal.Device, queue hal.Queue, s bbe.Settings, opts ...Option) (*Manager, error) {
	if !live.CompareAndSwap(false, true) {
		return nil, ErrSingletonViolation
	}
	if err := s.Validate(); err != nil {
		live.Store(false)
		return nil, err
	}
	format, err := gpu.ParseShaderFormat(s.Render.ShaderFormat)
	if err != nil {
		live.Store(false)
		return nil, err
	}

	var o managerOptions
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		settings:  s,
		device:    device,
		queue:     queue,
		staging:   o.staging,
		swapchain: o.swapchain,
	}
	if m.staging == nil {
		m.staging = arena.NewHeapAllocator()
		m.ownsStaging = true
	}
	if err := m.init(format); err != nil {
		m.release()
		live.Store(false)
		return nil, err
	}
	bbe.Logger().Info("render: manager initialized",
		"width", s.Window.Width, "height", s.Window.Height,
		"transform_containers", s.Render.TransformContainers,
		"shader_format", format)
	return m, nil
}

func (m *Manager) init(format gpu.ShaderFormat) error {
	s := m.settings
	if m.swapchain == nil {
		sc, err := gpu.NewOffscreenSwapchain(m.device,
			uint32(s.Window.Width), uint32(s.Window.Height), s.Render.SwapchainImages)
		if err != nil {
			return fmt.Errorf("render: swapchain: %w", err)
		}
		m.swapchain = sc
	}

	w, h := m.swapchain.Extent()
	if err := m.depth.Ensure(m.device, w, h); err != nil {
		return fmt.Errorf("render: depth target: %w", err)
	}

	m.reclaim = gpu.NewReclaimQueue(m.device)
	cycle, err := gpu.NewFrameCycle(m.device, m.queue, m.swapchain, &m.depth, m.reclaim, s.Render.FrameTimeout())
	if err != nil {
		return fmt.Errorf("render: frame cycle: %w", err)
	}
	m.cycle = cycle

	m.shaders = gpu.NewShaderCache(m.device, format)
	if m.pipeline2D, err = gpu.NewPrimitivePipeline(m.device, m.shaders, gpu.Primitive2D); err != nil {
		return fmt.Errorf("render: 2d pipeline: %w", err)
	}
	if m.pipeline3D, err = gpu.NewPrimitivePipeline(m.device, m.shaders, gpu.Primitive3D); err != nil {
		return fmt.Errorf("render: 3d pipeline: %w", err)
	}

	if m.colorUBO, err = m.createUniform("color_ubo", gpu.Color2DUniformSize); err != nil {
		return err
	}
	if m.cameraUBO, err = m.createUniform("camera_ubo", gpu.CameraUniformSize); err != nil {
		return err
	}
	if m.bindGroup2D, err = m.pipeline2D.NewBindGroup("primitive2d_bind_group",
		gpu.UniformBinding{Buffer: m.colorUBO, Size: gpu.Color2DUniformSize}); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	for i := range s.Render.TransformContainers {
		ubo, err := m.createUniform(fmt.Sprintf("transform_ubo_%d", i), gpu.TransformUniformSize)
		if err != nil {
			return err
		}
		m.transformUBOs = append(m.transformUBOs, ubo)
		bg, err := m.pipeline3D.NewBindGroup(fmt.Sprintf("primitive3d_bind_group_%d", i),
			gpu.UniformBinding{Buffer: m.cameraUBO, Size: gpu.CameraUniformSize},
			gpu.UniformBinding{Buffer: ubo, Size: gpu.TransformUniformSize})
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		m.bindGroups3D = append(m.bindGroups3D, bg)
	}

	m.queue.WriteBuffer(m.colorUBO, 0, encodeFloats(1, 1, 1, 1))
	m.queue.WriteBuffer(m.cameraUBO, 0, encodeFloats(identity[:]...))
	for i := range m.transformUBOs {
		if err := m.WriteTransform(i, identity, [4]float32{1, 1, 1, 1}); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) createUniform(label string, size uint64) (hal.Buffer, error) {
	buf, err := m.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("render: create %s: %w", label, err)
	}
	return buf, nil
}

// Settings returns the settings the Manager was created with.
func (m *Manager) Settings() bbe.Settings { return m.settings }

// BeginFrame acquires the next image and opens the frame's render pass.
func (m *Manager) BeginFrame() error {
	if m.closed {
		return ErrClosed
	}
	f, err := m.cycle.Begin()
	if err != nil {
		return err
	}
	m.frame = f
	return nil
}

// PreDraw2D binds the 2D primitive pipeline.
func (m *Manager) PreDraw2D() error {
	if m.frame == nil {
		return ErrNoFrame
	}
	if err := m.frame.SetPipeline(m.pipeline2D.Pipeline()); err != nil {
		return err
	}
	return m.frame.SetBindGroup(0, m.bindGroup2D, nil)
}

// PreDraw3D binds the 3D primitive pipeline with transform container i.
func (m *Manager) PreDraw3D(i int) error {
	if m.frame == nil {
		return ErrNoFrame
	}
	if i < 0 || i >= len(m.bindGroups3D) {
		return fmt.Errorf("%w: %d of %d", ErrTransformIndex, i, len(m.bindGroups3D))
	}
	if err := m.frame.SetPipeline(m.pipeline3D.Pipeline()); err != nil {
		return err
	}
	return m.frame.SetBindGroup(0, m.bindGroups3D[i], nil)
}

// Draw records vertexCount vertices from buf with the bound pipeline.
func (m *Manager) Draw(buf hal.Buffer, vertexCount uint32) error {
	if m.frame == nil {
		return ErrNoFrame
	}
	return m.frame.Draw(buf, vertexCount)
}

// EndFrame submits and presents the frame and waits for it to complete.
// Buffers retired before this call are destroyed before it returns.
func (m *Manager) EndFrame() error {
	if m.closed {
		return ErrClosed
	}
	if m.frame == nil {
		return ErrNoFrame
	}
	f := m.frame
	m.frame = nil
	return m.cycle.End(f)
}

// CreateVertexBuffer uploads data into a new vertex buffer. The returned
// memory handle holds the host copy; pass both to RetireBuffer when done.
func (m *Manager) CreateVertexBuffer(data []byte) (hal.Buffer, gpu.MemoryHandle, error) {
	if m.closed {
		return nil, nil, ErrClosed
	}
	if len(data) == 0 {
		return nil, nil, ErrEmptyBuffer
	}
	mem := gpu.NewHostMemory(m.staging, data)
	buf, err := m.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vertex_buffer",
		Size:  uint64(len(data)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		mem.Free()
		return nil, nil, fmt.Errorf("%w: create vertex buffer: %w", gpu.ErrDevice, err)
	}
	m.queue.WriteBuffer(buf, 0, mem.Bytes())
	m.created++
	return buf, mem, nil
}

// RetireBuffer schedules buf and mem for destruction once no submitted
// frame can reference them. Either may be nil.
//
// After Close buf is destroyed and mem freed at once, unless the device
// never confirmed it went idle, in which case buf is leaked.
func (m *Manager) RetireBuffer(buf hal.Buffer, mem gpu.MemoryHandle) {
	if m.closed {
		bbe.Logger().Warn("render: buffer retired after close, releasing immediately")
		if buf != nil && !m.busy {
			m.device.DestroyBuffer(buf)
		}
		if mem != nil {
			mem.Free()
		}
		return
	}
	m.reclaim.Enqueue(buf, mem)
	m.retired++
}

// SetColor2D sets the color of 2D primitives.
func (m *Manager) SetColor2D(r, g, b, a float32) error {
	if m.closed {
		return ErrClosed
	}
	m.queue.WriteBuffer(m.colorUBO, 0, encodeFloats(r, g, b, a))
	return nil
}

// WriteCamera sets the column-major view-projection matrix of 3D primitives.
func (m *Manager) WriteCamera(viewProj [16]float32) error {
	if m.closed {
		return ErrClosed
	}
	m.queue.WriteBuffer(m.cameraUBO, 0, encodeFloats(viewProj[:]...))
	return nil
}

// WriteTransform sets the model matrix and color of transform container i.
func (m *Manager) WriteTransform(i int, model [16]float32, color [4]float32) error {
	if m.closed {
		return ErrClosed
	}
	if i < 0 || i >= len(m.transformUBOs) {
		return fmt.Errorf("%w: %d of %d", ErrTransformIndex, i, len(m.transformUBOs))
	}
	data := encodeFloats(model[:]...)
	data = append(data, encodeFloats(color[:]...)...)
	m.queue.WriteBuffer(m.transformUBOs[i], 0, data)
	return nil
}

// TransformContainers returns the number of transform containers.
func (m *Manager) TransformContainers() int { return len(m.transformUBOs) }

// Stats returns a snapshot of the Manager counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		BuffersCreated: m.created,
		BuffersRetired: m.retired,
	}
	if m.cycle != nil {
		s.Frames = m.cycle.Frames()
		s.State = m.cycle.State().String()
	}
	if m.reclaim != nil {
		rs := m.reclaim.Stats()
		s.BuffersReclaimed = rs.Reclaimed
		s.PendingReclaim = rs.Pending
	}
	if m.shaders != nil {
		s.ShaderModules = m.shaders.Len()
	}
	return s
}

// Close waits for the device, destroys retired buffers and releases every
// GPU object in reverse creation order. If the device does not confirm it
// is idle, GPU objects are leaked instead. Close frees the singleton slot
// and is safe to call more than once.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.release()
	m.closed = true
	live.Store(false)
	bbe.Logger().Info("render: manager closed")
}

// release tears down whatever init created.
func (m *Manager) release() {
	m.frame = nil
	if m.cycle != nil {
		err := m.cycle.Destroy()
		m.cycle = nil
		if err != nil {
			// Submitted work may still read these objects.
			m.busy = true
			bbe.Logger().Error("render: device did not go idle, leaking GPU objects", "err", err)
			m.releaseStaging()
			return
		}
	} else if m.reclaim != nil {
		m.reclaim.DrainAndDestroy()
	}
	for i := len(m.bindGroups3D) - 1; i >= 0; i-- {
		m.device.DestroyBindGroup(m.bindGroups3D[i])
	}
	m.bindGroups3D = nil
	for i := len(m.transformUBOs) - 1; i >= 0; i-- {
		m.device.DestroyBuffer(m.transformUBOs[i])
	}
	m.transformUBOs = nil
	if m.bindGroup2D != nil {
		m.device.DestroyBindGroup(m.bindGroup2D)
		m.bindGroup2D = nil
	}
	if m.cameraUBO != nil {
		m.device.DestroyBuffer(m.cameraUBO)
		m.cameraUBO = nil
	}
	if m.colorUBO != nil {
		m.device.DestroyBuffer(m.colorUBO)
		m.colorUBO = nil
	}
	if m.pipeline3D != nil {
		m.pipeline3D.Destroy()
		m.pipeline3D = nil
	}
	if m.pipeline2D != nil {
		m.pipeline2D.Destroy()
		m.pipeline2D = nil
	}
	if m.shaders != nil {
		m.shaders.Destroy()
	}
	m.depth.Destroy(m.device)
	if m.swapchain != nil {
		m.swapchain.Destroy()
		m.swapchain = nil
	}
	m.releaseStaging()
}

func (m *Manager) releaseStaging() {
	if m.ownsStaging {
		if h, ok := m.staging.(*arena.HeapAllocator); ok {
			h.Close()
		}
	}
}

// identity is the 4x4 identity matrix.
var identity = [16]float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// encodeFloats packs values as little-endian float32.
func encodeFloats(values ...float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
