package gate

import (
	"strings"

	"github.com/piececount/puzzledex/internal/model"
)

// SnapshotsEqual compares the five price-relevant fields with exact equality.
// Author is compared after trimming: an absent author and an empty string are
// the same value, matching the store's NULL normalization.
func SnapshotsEqual(a, b model.Snapshot) bool {
	return a.Condition == b.Condition &&
		a.PiecesCount == b.PiecesCount &&
		a.Complete == b.Complete &&
		a.HasBox == b.HasBox &&
		strings.TrimSpace(a.Author) == strings.TrimSpace(b.Author)
}
