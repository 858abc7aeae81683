// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"github.com/Brotcrunsher/BrotboxEngine/arena"
)

// HostMemory is a host-side staging block taken from an arena.Allocator.
// It keeps the bytes uploaded into a buffer until the buffer is reclaimed.
type HostMemory struct {
	alloc arena.Allocator
	block []byte
}

// NewHostMemory copies data into a new block from alloc.
func NewHostMemory(alloc arena.Allocator, data []byte) *HostMemory {
	block := alloc.Allocate(len(data))
	copy(block, data)
	return &HostMemory{alloc: alloc, block: block}
}

// Bytes returns the staged bytes, or nil after Free.
func (m *HostMemory) Bytes() []byte { return m.block }

// Free returns the block to its allocator. Only the first call has an effect.
func (m *HostMemory) Free() {
	if m.block == nil {
		return
	}
	m.alloc.Deallocate(m.block)
	m.block = nil
}
