// Package bbe holds the engine-wide pieces of BrotboxEngine that every
// subsystem shares: the structured logger and the engine settings.
//
// # Overview
//
// The engine is split into two low-level foundations:
//
//   - arena: a fixed-capacity bump allocator with markers, rollback and a
//     destructor registry for scoped temporary allocations.
//   - render: a rendering-context manager that owns the GPU objects, runs a
//     strictly sequential frame cycle and reclaims retired buffers once the
//     GPU is done with them.
//
// # Quick Start
//
//	s, err := bbe.LoadSettings("bbe.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	bbe.SetLogger(slog.Default())
//
//	scratch := arena.New(arena.WithCapacity(s.Memory.StackAllocatorSize))
//	defer scratch.Close()
//
//	m, err := render.New(device, queue, s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
// # Logging
//
// By default nothing is logged. Call [SetLogger] to route engine logs to any
// [log/slog] handler. Sub-packages read the logger through [Logger].
package bbe

// Version is the engine version reported in logs and metrics.
const Version = "0.4.0"

// Version components.
const (
	VersionMajor = 0
	VersionMinor = 4
	VersionPatch = 0
)
