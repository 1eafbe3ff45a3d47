//go:build property
// +build property

package ledger

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestReplayDeterminism verifies that replaying an unmodified ledger twice
// yields identical ordered output for any sequence of appends.
func TestReplayDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("replay is idempotent", prop.ForAll(
		func(gateCount int) bool {
			s := NewStore()
			for i := 0; i < gateCount; i++ {
				event := Event{
					Timestamp:  time.Date(2026, 3, 1, 10, 0, i, 0, time.UTC),
					ProtocolID: "P01",
					GateID:     fmt.Sprintf("G%d", i+1),
					GateName:   fmt.Sprintf("Gate %d", i+1),
				}
				if err := s.Append(event); err != nil {
					return false
				}
			}
			snap := s.Snapshot()
			return reflect.DeepEqual(snap.Events(), snap.Events())
		},
		gen.IntRange(0, 50),
	))

	properties.Property("equal appends produce equal head hashes", prop.ForAll(
		func(gates []string) bool {
			build := func() string {
				s := NewStore()
				seen := map[string]bool{}
				for i, g := range gates {
					if g == "" || seen[g] {
						continue
					}
					seen[g] = true
					_ = s.Append(Event{
						Timestamp:  time.Date(2026, 3, 1, 10, 0, i, 0, time.UTC),
						ProtocolID: "P01",
						GateID:     g,
					})
				}
				return s.Head()
			}
			return build() == build()
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
