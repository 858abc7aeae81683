// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DepthFormat is the format of the depth attachment.
const DepthFormat = gputypes.TextureFormatDepth24PlusStencil8

// DepthTarget is the depth/stencil attachment shared by every frame.
type DepthTarget struct {
	tex    hal.Texture
	view   hal.TextureView
	width  uint32
	height uint32
}

// Ensure creates or recreates the depth texture if the requested size
// differs from the current one. A matching existing target is kept.
func (d *DepthTarget) Ensure(device hal.Device, w, h uint32) error {
	if d.width == w && d.height == h && d.tex != nil {
		return nil
	}
	d.Destroy(device)

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "depth_image",
		Size:          hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        DepthFormat,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create depth texture: %w", err)
	}
	d.tex = tex

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: "depth_image_view",
	})
	if err != nil {
		d.Destroy(device)
		return fmt.Errorf("create depth view: %w", err)
	}
	d.view = view

	d.width = w
	d.height = h
	return nil
}

// View returns the depth view, nil before Ensure.
func (d *DepthTarget) View() hal.TextureView { return d.view }

// Size returns the current depth target size.
func (d *DepthTarget) Size() (uint32, uint32) { return d.width, d.height }

// Destroy releases the texture and resets the size.
func (d *DepthTarget) Destroy(device hal.Device) {
	if d.view != nil {
		device.DestroyTextureView(d.view)
		d.view = nil
	}
	if d.tex != nil {
		device.DestroyTexture(d.tex)
		d.tex = nil
	}
	d.width = 0
	d.height = 0
}
