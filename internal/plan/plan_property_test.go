package plan

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/voxpack/voxpack/internal/layout"
	"github.com/voxpack/voxpack/pkg/types"
)

func TestGroupProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	key := types.GroupKey{Source: "src", Speaker: "spk"}

	properties.Property("fresh group yields ceil(n/m) batches covering n rows", prop.ForAll(
		func(n, m int) bool {
			placements, err := Group(Snapshot{Group: key}, n, m, "")
			if err != nil {
				return false
			}
			want := (n + m - 1) / m
			if len(placements) != want {
				return false
			}
			total := 0
			for _, p := range placements {
				if p.Rows <= 0 || p.Rows > m || !p.IsNew() {
					return false
				}
				total += p.Rows
			}
			return total == n
		},
		gen.IntRange(1, 50000),
		gen.IntRange(1, 5000),
	))

	properties.Property("only the final batch may be unsealed", prop.ForAll(
		func(n, m int) bool {
			placements, err := Group(Snapshot{Group: key}, n, m, "")
			if err != nil {
				return false
			}
			for i, p := range placements {
				if i < len(placements)-1 && p.Rows != m {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50000),
		gen.IntRange(1, 5000),
	))

	properties.Property("topping up never exceeds the ceiling", prop.ForAll(
		func(existing, n, m int) bool {
			if existing > m {
				existing = m
			}
			snap := Snapshot{
				Group:   key,
				Batches: []BatchState{{ID: layout.FormatBatchID(1), Rows: existing}},
			}
			placements, err := Group(snap, n, m, "")
			if err != nil {
				return false
			}
			total := 0
			for _, p := range placements {
				if p.Existing+p.Rows > m {
					return false
				}
				total += p.Rows
			}
			return total == n
		},
		gen.IntRange(0, 5000),
		gen.IntRange(1, 50000),
		gen.IntRange(1, 5000),
	))

	properties.Property("planning is deterministic", prop.ForAll(
		func(n, m int) bool {
			a, err1 := Group(Snapshot{Group: key}, n, m, "")
			b, err2 := Group(Snapshot{Group: key}, n, m, "")
			if err1 != nil || err2 != nil || len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 50000),
		gen.IntRange(1, 5000),
	))

	properties.TestingRun(t)
}
