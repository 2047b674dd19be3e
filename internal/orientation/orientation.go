// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/relabs-tech/posture_monitor/internal/accel"
)

// Verdict is the posture classification derived from device orientation.
type Verdict uint32

const (
	// Bad means the device is lying flat (or no sample has arrived yet).
	Bad Verdict = iota
	// Good means the device is held upright.
	Good
)

func (v Verdict) String() string {
	if v == Good {
		return "good"
	}
	return "bad"
}

func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Verdict) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "good":
		*v = Good
	case "bad":
		*v = Bad
	default:
		return fmt.Errorf("unknown verdict %q", s)
	}
	return nil
}

// Classify returns Good when the z axis strictly dominates both x and y in
// magnitude, and Bad otherwise. Ties are Bad. NaN on any axis compares false
// and therefore yields Bad.
func Classify(s accel.Sample) Verdict {
	ax := math.Abs(float64(s.X))
	ay := math.Abs(float64(s.Y))
	az := math.Abs(float64(s.Z))

	if az > ax && az > ay {
		return Good
	}
	return Bad
}
