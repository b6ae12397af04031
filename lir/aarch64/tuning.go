// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package aarch64

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml"
	"github.com/xyproto/env/v2"
	"golang.org/x/sys/cpu"
)

// Tuning holds the backend's performance knobs. The zero
// value is not meaningful; start from DefaultTuning.
type Tuning struct {
	// SIMDThreshold is the array size in bytes above which
	// comparison lowerings take the vector path rather than
	// the scalar loop.
	SIMDThreshold int64 `toml:"simd-threshold"`

	// UseSIMD enables the vector path. When it is false the
	// scalar loop handles every size.
	UseSIMD bool `toml:"use-simd"`
}

// DefaultTuning returns the standard tuning, adjusted for the
// host when compiling for it. On an AArch64 host without
// advanced SIMD the vector path is disabled.
func DefaultTuning() Tuning {
	t := Tuning{
		SIMDThreshold: 32,
		UseSIMD:       true,
	}
	if runtime.GOARCH == "arm64" && !cpu.ARM64.HasASIMD {
		t.UseSIMD = false
	}

	return t
}

// LoadTuning reads tuning from the TOML file at path, starting
// from the defaults, then applies any environment overrides.
// An empty path skips the file.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Tuning{}, fmt.Errorf("failed to read tuning file: %w", err)
		}

		if err := toml.Unmarshal(data, &t); err != nil {
			return Tuning{}, fmt.Errorf("failed to parse tuning file %s: %w", path, err)
		}
	}

	// The env package caches the environment on first use;
	// reload it so variables set since then are seen.
	env.Load()

	t.SIMDThreshold = int64(env.Int("OPAL_SIMD_THRESHOLD", int(t.SIMDThreshold)))
	if env.Has("OPAL_USE_SIMD") {
		t.UseSIMD = env.Bool("OPAL_USE_SIMD")
	}

	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}

	return t, nil
}

// Validate checks that the tuning is usable.
func (t Tuning) Validate() error {
	if t.SIMDThreshold < 0 {
		return fmt.Errorf("invalid tuning: negative SIMD threshold %d", t.SIMDThreshold)
	}

	return nil
}
