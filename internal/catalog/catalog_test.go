package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/voxpack/voxpack/pkg/types"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), ".voxpack", "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestReplaceBatchAndKnownIDs(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	key := types.PartitionKey{Source: "youtube", Speaker: "somrat", Batch: "batch_0001"}

	if err := c.ReplaceBatch(ctx, key, []string{"r1", "r2"}, 100, 1); err != nil {
		t.Fatalf("replace: %v", err)
	}

	known, err := c.KnownIDs(ctx, key.Group())
	if err != nil {
		t.Fatalf("known: %v", err)
	}
	if len(known) != 2 || known["r1"] != "batch_0001" || known["r2"] != "batch_0001" {
		t.Errorf("known = %v", known)
	}

	// Replacing drops ids no longer in the table.
	if err := c.ReplaceBatch(ctx, key, []string{"r2", "r3"}, 120, 2); err != nil {
		t.Fatalf("replace: %v", err)
	}
	known, err = c.KnownIDs(ctx, key.Group())
	if err != nil {
		t.Fatalf("known: %v", err)
	}
	if len(known) != 2 || known["r1"] != "" || known["r3"] != "batch_0001" {
		t.Errorf("known after replace = %v", known)
	}
}

func TestKnownIDsScopedToGroup(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	a := types.PartitionKey{Source: "youtube", Speaker: "somrat", Batch: "batch_0001"}
	b := types.PartitionKey{Source: "youtube", Speaker: "anik", Batch: "batch_0001"}

	if err := c.ReplaceBatch(ctx, a, []string{"r1"}, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.ReplaceBatch(ctx, b, []string{"r2"}, 1, 1); err != nil {
		t.Fatal(err)
	}

	known, err := c.KnownIDs(ctx, a.Group())
	if err != nil {
		t.Fatal(err)
	}
	if len(known) != 1 || known["r1"] == "" {
		t.Errorf("known = %v", known)
	}
}

func TestFresh(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	key := types.PartitionKey{Source: "s", Speaker: "p", Batch: "batch_0001"}

	fresh, err := c.Fresh(ctx, key, 100, 1)
	if err != nil {
		t.Fatal(err)
	}
	if fresh {
		t.Error("unindexed batch reported fresh")
	}

	if err := c.ReplaceBatch(ctx, key, []string{"r1"}, 100, 1); err != nil {
		t.Fatal(err)
	}
	if fresh, err = c.Fresh(ctx, key, 100, 1); err != nil || !fresh {
		t.Errorf("fresh = %v, %v", fresh, err)
	}
	if fresh, err = c.Fresh(ctx, key, 100, 2); err != nil || fresh {
		t.Errorf("mtime change still fresh: %v, %v", fresh, err)
	}
	if fresh, err = c.Fresh(ctx, key, 99, 1); err != nil || fresh {
		t.Errorf("size change still fresh: %v, %v", fresh, err)
	}
}

func TestDeleteBatch(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	key := types.PartitionKey{Source: "s", Speaker: "p", Batch: "batch_0001"}

	if err := c.ReplaceBatch(ctx, key, []string{"r1"}, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteBatch(ctx, key); err != nil {
		t.Fatal(err)
	}

	known, err := c.KnownIDs(ctx, key.Group())
	if err != nil {
		t.Fatal(err)
	}
	if len(known) != 0 {
		t.Errorf("known after delete = %v", known)
	}
	records, err := c.Batches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("records after delete = %v", records)
	}
}

func TestBatchesOrdering(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	keys := []types.PartitionKey{
		{Source: "youtube", Speaker: "somrat", Batch: "batch_0002"},
		{Source: "crowd", Speaker: "anik", Batch: "batch_0001"},
		{Source: "youtube", Speaker: "anik", Batch: "batch_0001"},
	}
	for _, k := range keys {
		if err := c.ReplaceBatch(ctx, k, []string{"r-" + k.String()}, 1, 1); err != nil {
			t.Fatal(err)
		}
	}

	records, err := c.Batches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"crowd/anik/batch_0001",
		"youtube/anik/batch_0001",
		"youtube/somrat/batch_0002",
	}
	if len(records) != len(want) {
		t.Fatalf("records = %v", records)
	}
	for i, w := range want {
		if records[i].Key.String() != w {
			t.Errorf("record %d = %s, want %s", i, records[i].Key, w)
		}
	}
}

func TestClear(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	key := types.PartitionKey{Source: "s", Speaker: "p", Batch: "batch_0001"}
	if err := c.ReplaceBatch(ctx, key, []string{"r1"}, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	records, err := c.Batches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("records after clear = %v", records)
	}
}
