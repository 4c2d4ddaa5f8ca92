package plan

import (
	"os"
	"testing"

	"github.com/voxpack/voxpack/internal/errors"
	"github.com/voxpack/voxpack/internal/layout"
	"github.com/voxpack/voxpack/pkg/types"
)

func seedPartitions(t *testing.T, paths layout.Paths, keys ...types.PartitionKey) {
	t.Helper()
	for _, k := range keys {
		if err := os.MkdirAll(paths.AudioDir(k), 0755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListPartitionsOrdering(t *testing.T) {
	paths := layout.Paths{Root: t.TempDir()}
	seedPartitions(t, paths,
		types.PartitionKey{Source: "youtube", Speaker: "somrat", Batch: "batch_0010"},
		types.PartitionKey{Source: "youtube", Speaker: "somrat", Batch: "batch_0002"},
		types.PartitionKey{Source: "crowd", Speaker: "anik", Batch: "batch_0001"},
		types.PartitionKey{Source: "youtube", Speaker: "anik", Batch: "batch_0001"},
	)

	keys, err := ListPartitions(paths, Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"crowd/anik/batch_0001",
		"youtube/anik/batch_0001",
		"youtube/somrat/batch_0002",
		"youtube/somrat/batch_0010",
	}
	if len(keys) != len(want) {
		t.Fatalf("got %d partitions, want %d", len(keys), len(want))
	}
	for i, w := range want {
		if keys[i].String() != w {
			t.Errorf("partition %d = %s, want %s", i, keys[i], w)
		}
	}
}

func TestListPartitionsFilters(t *testing.T) {
	paths := layout.Paths{Root: t.TempDir()}
	seedPartitions(t, paths,
		types.PartitionKey{Source: "youtube", Speaker: "somrat", Batch: "batch_0001"},
		types.PartitionKey{Source: "youtube", Speaker: "anik", Batch: "batch_0001"},
		types.PartitionKey{Source: "crowd", Speaker: "somrat", Batch: "batch_0002"},
	)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name:   "by speaker",
			filter: Filter{Speaker: "somrat"},
			want:   []string{"crowd/somrat/batch_0002", "youtube/somrat/batch_0001"},
		},
		{
			name:   "speaker is matched case-insensitively",
			filter: Filter{Speaker: "  Somrat "},
			want:   []string{"crowd/somrat/batch_0002", "youtube/somrat/batch_0001"},
		},
		{
			name:   "by source and batch",
			filter: Filter{Source: "youtube", Batch: "batch_0001"},
			want:   []string{"youtube/anik/batch_0001", "youtube/somrat/batch_0001"},
		},
		{
			name:   "no matches",
			filter: Filter{Speaker: "nobody"},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := ListPartitions(paths, tt.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(keys) != len(tt.want) {
				t.Fatalf("got %v, want %v", keys, tt.want)
			}
			for i, w := range tt.want {
				if keys[i].String() != w {
					t.Errorf("partition %d = %s, want %s", i, keys[i], w)
				}
			}
		})
	}
}

func TestListPartitionsInvalidFilterLabel(t *testing.T) {
	paths := layout.Paths{Root: t.TempDir()}
	_, err := ListPartitions(paths, Filter{Speaker: ".."})
	if err == nil {
		t.Fatal("expected InvalidLabel")
	}
	if errors.GetCode(err) != errors.CodeInvalidLabel {
		t.Errorf("expected INVALID_LABEL, got %v", err)
	}
}

func TestListPartitionsMissingDataset(t *testing.T) {
	paths := layout.Paths{Root: t.TempDir() + "/nope"}
	keys, err := ListPartitions(paths, Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no partitions, got %v", keys)
	}
}
