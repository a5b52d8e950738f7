package roadway

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

// DebugDump returns a human-readable dump of the archive's report
// configuration and table sizes, for troubleshooting mismatched corridor
// definitions.
func (a *Archive) DebugDump() string {
	summary := fmt.Sprintf("observations: %d\nmetadata segments: %d\n",
		len(a.Observations), len(a.Metadata))
	return summary + spew.Sdump(a.Contents)
}
