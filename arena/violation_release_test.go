//go:build bberelease

package arena

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bbe "github.com/Brotcrunsher/BrotboxEngine"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	orig := bbe.Logger()
	t.Cleanup(func() { bbe.SetLogger(orig) })
	var buf bytes.Buffer
	bbe.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	return &buf
}

func TestReleaseCloseRunsOutstandingDestructors(t *testing.T) {
	logs := captureLogs(t)
	a := New(WithCapacity(64))

	var (
		next  int32
		order []int32
	)
	_, err := MakeWithFinalizer(a, 3,
		func(v *int32) { *v = next; next++ },
		func(v *int32) { order = append(order, *v) })
	require.NoError(t, err)

	a.Close()
	assert.True(t, a.Closed())
	assert.Equal(t, []int32{2, 1, 0}, order)
	assert.Contains(t, logs.String(), "protocol violation")
}

func TestReleaseViolationsAreIgnored(t *testing.T) {
	logs := captureLogs(t)
	a := New(WithCapacity(64))
	b := New(WithCapacity(64))
	defer b.Close()

	_, err := a.Allocate(8, 1)
	require.NoError(t, err)
	a.RollbackTo(b.Marker(), true)
	assert.Equal(t, 8, a.Len())

	a.ResetAll(false)
	a.Close()
	a.Close()

	_, err = a.Allocate(1, 1)
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.Contains(t, logs.String(), "RollbackTo")
}
