package recommend

import (
	"time"

	"github.com/poiesic/plexrec/core"
)

// Cache miss reasons reported to Monitor.CacheMiss.
const (
	MissAbsent  = "absent"
	MissCorrupt = "corrupt"
	MissModel   = "model"
	MissForced  = "forced"
)

// Query operation names reported to Monitor.Query.
const (
	OpByTitle = "by_title"
	OpForItem = "for_item"
	OpPopular = "popular"
	OpAllTime = "all_time"
)

// Monitor receives engine lifecycle and query events.
// Implementations must be safe for concurrent use.
type Monitor interface {
	CacheHit(kind core.Kind, rows int)
	CacheMiss(kind core.Kind, reason string)
	BuildStarted(kind core.Kind, rows int)
	BuildFinished(kind core.Kind, rows int, elapsed time.Duration, err error)
	Query(kind core.Kind, op string, elapsed time.Duration)
}

// NoopMonitor discards every event.
type NoopMonitor struct{}

var _ Monitor = NoopMonitor{}

func (NoopMonitor) CacheHit(core.Kind, int) {}
func (NoopMonitor) CacheMiss(core.Kind, string) {}
func (NoopMonitor) BuildStarted(core.Kind, int) {}
func (NoopMonitor) BuildFinished(core.Kind, int, time.Duration, error) {}
func (NoopMonitor) Query(core.Kind, string, time.Duration) {}
