// A thin wrapper over the system clock which can be implemented for use in tests.
package clock

import (
	"sync/atomic"
	"time"
)

type Clock interface {
	CurrentTimeMicro() uint64
	CurrentTimeMs() uint64
	CurrentTimeSec() uint64
	Now() time.Time
}

type systemClock struct{}

func NewSystemClock() Clock {
	return &systemClock{}
}

func (sc *systemClock) CurrentTimeMicro() uint64 {
	return uint64(time.Now().UnixMicro())
}

func (sc *systemClock) CurrentTimeMs() uint64 {
	return sc.CurrentTimeMicro() / 1000
}

func (sc *systemClock) CurrentTimeSec() uint64 {
	return sc.CurrentTimeMicro() / 1000000
}

func (sc *systemClock) Now() time.Time {
	return time.Now()
}

// OffsetClock applies a server-reported offset to an underlying clock.
// Received-timestamps are stamped with network time, not local time, so a
// device with a skewed clock still orders messages the way the swarm does.
type OffsetClock struct {
	inner    Clock
	offsetMs atomic.Int64
}

func NewOffsetClock(inner Clock) *OffsetClock {
	return &OffsetClock{inner: inner}
}

// SetOffsetMs records the latest (serverTime - localTime) estimate.
func (oc *OffsetClock) SetOffsetMs(offset int64) {
	oc.offsetMs.Store(offset)
}

func (oc *OffsetClock) OffsetMs() int64 {
	return oc.offsetMs.Load()
}

func (oc *OffsetClock) CurrentTimeMicro() uint64 {
	return uint64(int64(oc.inner.CurrentTimeMicro()) + oc.offsetMs.Load()*1000)
}

func (oc *OffsetClock) CurrentTimeMs() uint64 {
	return oc.CurrentTimeMicro() / 1000
}

func (oc *OffsetClock) CurrentTimeSec() uint64 {
	return oc.CurrentTimeMicro() / 1000000
}

func (oc *OffsetClock) Now() time.Time {
	return oc.inner.Now().Add(time.Duration(oc.offsetMs.Load()) * time.Millisecond)
}
