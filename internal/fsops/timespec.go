package fsops

import (
	"fmt"
	"time"
)

// Timespec models a timestamp as explicit (seconds, nanos) rather
// than exposing a libc timespec struct directly (spec §9: "model
// timestamps as (seconds: i64, nanos: u32) with explicit validators
// at the boundary; never expose raw foreign structs").
type Timespec struct {
	Seconds int64
	Nanos   uint32
}

// Validate reports whether the nanosecond component is in range.
func (t Timespec) Validate() error {
	if t.Nanos >= 1e9 {
		return fmt.Errorf("timespec: nanos %d out of range [0, 1e9)", t.Nanos)
	}
	return nil
}

// Time converts to a time.Time in UTC.
func (t Timespec) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// TimespecFromTime converts a time.Time to a Timespec.
func TimespecFromTime(t time.Time) Timespec {
	return Timespec{Seconds: t.Unix(), Nanos: uint32(t.Nanosecond())}
}
