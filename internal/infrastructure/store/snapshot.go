package store

import (
	"encoding/json"
	"time"
)

// DefaultSnapshotInterval is the number of events after which a new snapshot is written.
const DefaultSnapshotInterval = 20

// Snapshot represents a point-in-time state of an aggregate
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"` // Event version at snapshot time
	State         json.RawMessage `json:"state"`   // Serialized aggregate state
	CreatedAt     time.Time       `json:"created_at"`
}

// SnapshotDue reports whether a stream that moved from lastSnapshot to version
// has accumulated at least interval events since its last snapshot.
func SnapshotDue(version, lastSnapshot, interval int) bool {
	if interval <= 0 {
		return false
	}
	return version-lastSnapshot >= interval
}
