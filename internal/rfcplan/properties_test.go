package rfcplan

import (
	"context"
	"os"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPlanStatusFolderExclusivityProperty verifies spec.md §4.8's core
// invariant that a plan lives under exactly one status folder at a time:
// for any sequence of Move transitions, the plan directory exists in its
// target status folder and nowhere else once MovePlan returns.
func TestPlanStatusFolderExclusivityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("exactly one status folder holds the plan after each move", prop.ForAll(
		func(toArchived []bool) bool {
			dir := t.TempDir()
			store, err := NewStore(dir)
			if err != nil {
				return false
			}

			rfc, err := store.CreateRFC(context.Background(), testOpts("Exclusivity Test", "exclusivity-test"))
			if err != nil {
				return false
			}
			planName := "exclusivity-test-plan"
			if _, err := store.SaveGeneratedPlan(context.Background(), planName, samplePlanJSON(t, ""), rfc.Sidecar.RFCID, RFCHash(rfc.Markdown)); err != nil {
				return false
			}

			for _, toArchive := range toArchived {
				target := string(StatusInProgress)
				if toArchive {
					target = string(StatusArchived)
				}
				if err := store.MovePlan(context.Background(), planName, target); err != nil {
					return false
				}
				if !exactlyOneStatusFolderHasPlan(store, planName) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func exactlyOneStatusFolderHasPlan(store *Store, planName string) bool {
	found := 0
	for _, status := range statuses {
		if _, err := os.Stat(store.planDocDir(status, planName)); err == nil {
			found++
		}
	}
	return found == 1
}
