// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// ShaderFormat selects how WGSL sources reach the device.
type ShaderFormat int

const (
	// ShaderFormatWGSL passes WGSL to the device unchanged.
	ShaderFormatWGSL ShaderFormat = iota
	// ShaderFormatSPIRV compiles WGSL to SPIR-V with naga first.
	ShaderFormatSPIRV
)

// String returns the settings name of the format.
func (f ShaderFormat) String() string {
	switch f {
	case ShaderFormatWGSL:
		return "wgsl"
	case ShaderFormatSPIRV:
		return "spirv"
	default:
		return fmt.Sprintf("ShaderFormat(%d)", int(f))
	}
}

// ParseShaderFormat maps a settings value to a ShaderFormat.
func ParseShaderFormat(s string) (ShaderFormat, error) {
	switch s {
	case "", "wgsl":
		return ShaderFormatWGSL, nil
	case "spirv":
		return ShaderFormatSPIRV, nil
	default:
		return 0, fmt.Errorf("gpu: unknown shader format %q", s)
	}
}

// ErrEmptyShader is returned for an empty WGSL source.
var ErrEmptyShader = errors.New("gpu: empty shader source")

// ShaderCache creates shader modules and shares identical sources.
// Modules are keyed by the xxhash of their WGSL source.
type ShaderCache struct {
	device  hal.Device
	format  ShaderFormat
	modules map[uint64]hal.ShaderModule
	hits    uint64
}

// NewShaderCache returns an empty cache for device.
func NewShaderCache(device hal.Device, format ShaderFormat) *ShaderCache {
	return &ShaderCache{
		device:  device,
		format:  format,
		modules: make(map[uint64]hal.ShaderModule),
	}
}

// Module returns the module for wgsl, creating it on first use.
func (c *ShaderCache) Module(label, wgsl string) (hal.ShaderModule, error) {
	if wgsl == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyShader, label)
	}
	key := xxhash.Sum64String(wgsl)
	if m, ok := c.modules[key]; ok {
		c.hits++
		return m, nil
	}

	source := hal.ShaderSource{WGSL: wgsl}
	if c.format == ShaderFormatSPIRV {
		words, err := compileSPIRV(wgsl)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", label, err)
		}
		source = hal.ShaderSource{SPIRV: words}
	}

	m, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: source,
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module %s: %w", label, err)
	}
	c.modules[key] = m
	slogger().Debug("gpu: shader module created", "label", label, "format", c.format)
	return m, nil
}

// Len returns the number of cached modules.
func (c *ShaderCache) Len() int { return len(c.modules) }

// Hits returns how many Module calls were served from the cache.
func (c *ShaderCache) Hits() uint64 { return c.hits }

// Destroy releases every cached module.
func (c *ShaderCache) Destroy() {
	for k, m := range c.modules {
		c.device.DestroyShaderModule(m)
		delete(c.modules, k)
	}
}

// compileSPIRV compiles WGSL to little-endian SPIR-V words.
func compileSPIRV(wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, err
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}
