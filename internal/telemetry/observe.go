//go:build !nogpu

package telemetry

import (
	"github.com/Brotcrunsher/BrotboxEngine/arena"
	"github.com/Brotcrunsher/BrotboxEngine/render"
)

// ObserveArena publishes an arena snapshot under the given name.
// Snapshots are taken by the goroutine that owns the arena.
func (t *Telemetry) ObserveArena(name string, s arena.Stats) {
	t.arenaInUse.With(name).Set(float64(s.InUse))
	t.arenaCapacity.With(name).Set(float64(s.Capacity))
	t.arenaPeak.With(name).Set(float64(s.Peak))
	t.arenaDestructors.With(name).Set(float64(s.Destructors))
}

// ObserveRender publishes a render manager snapshot. Counters advance by
// the difference to the previous snapshot.
func (t *Telemetry) ObserveRender(s render.Stats) {
	t.frames.Add(delta(s.Frames, t.last.frames))
	t.buffersCreated.Add(delta(s.BuffersCreated, t.last.created))
	t.buffersReclaimed.Add(delta(s.BuffersReclaimed, t.last.reclaimed))
	t.reclaimPending.Set(float64(s.PendingReclaim))
	t.shaderModules.Set(float64(s.ShaderModules))

	if s.State != t.last.state {
		if t.last.state != "" {
			t.frameState.With(t.last.state).Set(0)
		}
		if s.State != "" {
			t.frameState.With(s.State).Set(1)
		}
	}

	t.last = renderTotals{
		frames:    s.Frames,
		created:   s.BuffersCreated,
		reclaimed: s.BuffersReclaimed,
		state:     s.State,
	}
}

func delta(cur, prev uint64) float64 {
	if cur < prev {
		return float64(cur)
	}
	return float64(cur - prev)
}
