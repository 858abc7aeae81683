// Copyright 2026 The BrotboxEngine Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"log/slog"

	bbe "github.com/Brotcrunsher/BrotboxEngine"
)

// slogger returns the engine-wide logger installed with bbe.SetLogger.
func slogger() *slog.Logger { return bbe.Logger() }
