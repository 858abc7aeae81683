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

// Swapchain errors.
var (
	ErrImageInUse      = errors.New("gpu: swapchain image already acquired")
	ErrImageNotHeld    = errors.New("gpu: swapchain image not acquired")
	ErrInvalidSwapSize = errors.New("gpu: swapchain size must be non-zero")
)

// ColorFormat is the format of swapchain images and pipeline color targets.
const ColorFormat = gputypes.TextureFormatBGRA8Unorm

// Swapchain hands out presentation targets to the frame cycle.
type Swapchain interface {
	// AcquireNextImage blocks until an image is available or timeout
	// elapses. A zero timeout waits without bound.
	AcquireNextImage(timeout time.Duration) (index uint32, view hal.TextureView, err error)
	// Present hands the acquired image back for display.
	Present(index uint32) error
	// Extent returns the image size in pixels.
	Extent() (width, height uint32)
	// Destroy releases all images.
	Destroy()
}

type swapImage struct {
	tex  hal.Texture
	view hal.TextureView
}

// OffscreenSwapchain is a ring of color textures used as presentation
// targets when there is no window surface.
type OffscreenSwapchain struct {
	device   hal.Device
	images   []swapImage
	width    uint32
	height   uint32
	next     uint32
	held     bool
	heldIdx  uint32
	presents uint64
}

// NewOffscreenSwapchain creates count w x h color images.
func NewOffscreenSwapchain(device hal.Device, w, h uint32, count int) (*OffscreenSwapchain, error) {
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSwapSize, w, h)
	}
	if count < 1 {
		count = 1
	}
	s := &OffscreenSwapchain{device: device, width: w, height: h}
	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}
	for i := range count {
		tex, err := device.CreateTexture(&hal.TextureDescriptor{
			Label:         fmt.Sprintf("swapchain_image_%d", i),
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        ColorFormat,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("create swapchain image %d: %w", i, err)
		}
		view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label: fmt.Sprintf("swapchain_image_view_%d", i),
		})
		if err != nil {
			device.DestroyTexture(tex)
			s.Destroy()
			return nil, fmt.Errorf("create swapchain image view %d: %w", i, err)
		}
		s.images = append(s.images, swapImage{tex: tex, view: view})
	}
	return s, nil
}

// AcquireNextImage returns the next image of the ring. Only one image can
// be held at a time, so the timeout never comes into play.
func (s *OffscreenSwapchain) AcquireNextImage(time.Duration) (uint32, hal.TextureView, error) {
	if s.held {
		return 0, nil, fmt.Errorf("%w: image %d", ErrImageInUse, s.heldIdx)
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	s.held = true
	s.heldIdx = idx
	return idx, s.images[idx].view, nil
}

// Present releases the held image.
func (s *OffscreenSwapchain) Present(index uint32) error {
	if !s.held || index != s.heldIdx {
		return fmt.Errorf("%w: image %d", ErrImageNotHeld, index)
	}
	s.held = false
	s.presents++
	return nil
}

// Extent returns the image size.
func (s *OffscreenSwapchain) Extent() (uint32, uint32) { return s.width, s.height }

// Len returns the number of images in the ring.
func (s *OffscreenSwapchain) Len() int { return len(s.images) }

// Presents returns how many images have been presented.
func (s *OffscreenSwapchain) Presents() uint64 { return s.presents }

// Texture returns the texture of image index, for readback.
func (s *OffscreenSwapchain) Texture(index uint32) hal.Texture {
	if int(index) >= len(s.images) {
		return nil
	}
	return s.images[index].tex
}

// Destroy releases all images in reverse creation order.
func (s *OffscreenSwapchain) Destroy() {
	for i := len(s.images) - 1; i >= 0; i-- {
		img := s.images[i]
		if img.view != nil {
			s.device.DestroyTextureView(img.view)
		}
		if img.tex != nil {
			s.device.DestroyTexture(img.tex)
		}
	}
	s.images = nil
	s.held = false
}
