// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"github.com/gogpu/wgpu/hal"
)

// MemoryHandle is memory backing a retired buffer that must be released
// together with it.
type MemoryHandle interface {
	Free()
}

// BufferDestroyer releases GPU buffers. hal.Device implements it.
type BufferDestroyer interface {
	DestroyBuffer(buffer hal.Buffer)
}

type pendingBuffer struct {
	buffer hal.Buffer
	memory MemoryHandle
}

// ReclaimStats reports deferred reclamation counters.
type ReclaimStats struct {
	Enqueued  uint64
	Reclaimed uint64
	Pending   int
}

// ReclaimQueue holds buffers that commands in flight may still reference.
// They are destroyed by DrainAndDestroy, which the frame cycle calls only
// after the frame fence has signaled. Queued pairs have no ordering among
// themselves.
//
// ReclaimQueue is not safe for concurrent use.
type ReclaimQueue struct {
	device    BufferDestroyer
	pending   []pendingBuffer
	enqueued  uint64
	reclaimed uint64
}

// NewReclaimQueue creates an empty queue that destroys buffers on device.
func NewReclaimQueue(device BufferDestroyer) *ReclaimQueue {
	return &ReclaimQueue{device: device}
}

// Enqueue schedules buffer and memory for destruction. Either may be nil.
func (q *ReclaimQueue) Enqueue(buffer hal.Buffer, memory MemoryHandle) {
	if buffer == nil && memory == nil {
		return
	}
	q.pending = append(q.pending, pendingBuffer{buffer: buffer, memory: memory})
	q.enqueued++
}

// DrainAndDestroy destroys every queued buffer, frees its memory, empties
// the queue and returns the number of pairs released.
func (q *ReclaimQueue) DrainAndDestroy() int {
	n := len(q.pending)
	if n == 0 {
		return 0
	}
	for i := range q.pending {
		p := q.pending[i]
		q.pending[i] = pendingBuffer{}
		if p.buffer != nil {
			q.device.DestroyBuffer(p.buffer)
		}
		if p.memory != nil {
			p.memory.Free()
		}
	}
	q.pending = q.pending[:0]
	q.reclaimed += uint64(n)
	slogger().Debug("gpu: reclaimed buffers", "count", n)
	return n
}

// Len returns the number of queued pairs.
func (q *ReclaimQueue) Len() int { return len(q.pending) }

// Stats returns the queue counters.
func (q *ReclaimQueue) Stats() ReclaimStats {
	return ReclaimStats{
		Enqueued:  q.enqueued,
		Reclaimed: q.reclaimed,
		Pending:   len(q.pending),
	}
}
