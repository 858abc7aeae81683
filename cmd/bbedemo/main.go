//go:build !nogpu

// Command bbedemo drives the render manager for a few frames on the noop
// GPU backend, using a scratch arena for per-frame vertex data.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	bbe "github.com/Brotcrunsher/BrotboxEngine"
	"github.com/Brotcrunsher/BrotboxEngine/arena"
	"github.com/Brotcrunsher/BrotboxEngine/internal/telemetry"
	"github.com/Brotcrunsher/BrotboxEngine/render"
)

type vertex2D struct {
	X, Y float32
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML settings file")
		frames     = flag.Int("frames", 3, "number of frames to render")
	)
	flag.Parse()

	s, err := bbe.LoadSettings(*configPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	bbe.SetLogger(bbe.NewLogger(s.Logging, os.Stderr))

	if err := run(s, *frames); err != nil {
		log.Fatalf("bbedemo: %v", err)
	}
}

func run(s bbe.Settings, frames int) error {
	logger := bbe.Logger()
	logger.Info("starting", "app", s.App.Name, "version", bbe.Version)

	tel := telemetry.New(s.Metrics.Enabled, "bbe")
	if srv := serveMetrics(s.Metrics, tel); srv != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	device, queue, cleanup, err := openNoopDevice()
	if err != nil {
		return err
	}
	defer cleanup()

	staging := arena.NewHeapAllocator()
	defer staging.Close()

	m, err := render.New(device, queue, s, render.WithStagingAllocator(staging))
	if err != nil {
		return fmt.Errorf("create render manager: %w", err)
	}
	defer m.Close()

	scratch := arena.New(arena.WithCapacity(s.Memory.StackAllocatorSize))
	defer scratch.Close()

	for i := 0; i < frames; i++ {
		if err := renderFrame(m, scratch, i); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		tel.ObserveArena("scratch", scratch.Stats())
		tel.ObserveRender(m.Stats())
	}

	st := m.Stats()
	logger.Info("done",
		"frames", st.Frames,
		"buffers_created", st.BuffersCreated,
		"buffers_reclaimed", st.BuffersReclaimed,
		"scratch_peak", scratch.Peak())
	return nil
}

func renderFrame(m *render.Manager, scratch *arena.Arena, frame int) error {
	mark := scratch.Marker()
	defer scratch.RollbackTo(mark, true)

	offset := float32(frame) * 0.1
	corners := [3]vertex2D{{-0.5, -0.5}, {0.5, -0.5}, {0, 0.5}}
	next := 0
	verts, err := arena.Make(scratch, len(corners), func(v *vertex2D) {
		*v = vertex2D{X: corners[next].X + offset, Y: corners[next].Y}
		next++
	})
	if err != nil {
		return err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(&verts[0])), len(verts)*int(unsafe.Sizeof(verts[0])))
	buf, mem, err := m.CreateVertexBuffer(data)
	if err != nil {
		return err
	}
	// The buffer must outlive this frame's command buffer.
	defer m.RetireBuffer(buf, mem)

	if err := m.BeginFrame(); err != nil {
		return err
	}
	if err := m.SetColor2D(1, 0.5, 0, 1); err != nil {
		return err
	}
	if err := m.PreDraw2D(); err != nil {
		return err
	}
	if err := m.Draw(buf, uint32(len(verts))); err != nil {
		return err
	}
	return m.EndFrame()
}

func serveMetrics(ms bbe.MetricsSettings, tel *telemetry.Telemetry) *http.Server {
	h := tel.Handler()
	if h == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: ms.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			bbe.Logger().Error("metrics server stopped", "err", err)
		}
	}()
	bbe.Logger().Info("serving metrics", "addr", ms.Address)
	return srv
}

func openNoopDevice() (hal.Device, hal.Queue, func(), error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, nil, errors.New("no adapters")
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, fmt.Errorf("open adapter: %w", err)
	}
	cleanup := func() {
		open.Device.Destroy()
		instance.Destroy()
	}
	return open.Device, open.Queue, cleanup, nil
}
