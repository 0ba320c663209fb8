package db

import (
	"context"
	"os"
	"testing"
)

// testDB connects to SHIPIT_TEST_DATABASE_URL and starts from an empty schema.
func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("SHIPIT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SHIPIT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	d, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Reset(ctx); err != nil {
		t.Fatalf("reset test db: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestMigrate_Idempotent(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	if err := d.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var version int
	if err := d.pool.QueryRow(ctx, "SELECT version FROM shipit_schema_version").Scan(&version); err != nil {
		t.Fatalf("query schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}
}

func TestRecordAndListReleases(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	recs := []Release{
		{Project: "shop", Tier: "stg", Version: "1.0.0.0", Tag: "v1.0.0.0", Image: "reg/api:1.0.0.0", Workflow: "SP"},
		{Project: "shop", Tier: "stg", Version: "1.0.0.1", Tag: "v1.0.0.1", Image: "reg/api:1.0.0.1", Workflow: "SP"},
		{Project: "shop", Tier: "prod", Version: "1.0.0", Tag: "v1.0.0", Image: "reg/api:1.0.0", Workflow: "SP"},
		{Project: "other", Tier: "stg", Version: "3.0.0.0", Tag: "v3.0.0.0", Image: "reg/o:3.0.0.0", Workflow: "S"},
	}
	for _, r := range recs {
		id, err := d.RecordRelease(ctx, r)
		if err != nil {
			t.Fatalf("RecordRelease(%s): %v", r.Tag, err)
		}
		if id <= 0 {
			t.Errorf("RecordRelease(%s) id = %d, want positive", r.Tag, id)
		}
	}

	all, err := d.ListReleases(ctx, ReleaseFilter{Project: "shop"})
	if err != nil {
		t.Fatalf("ListReleases: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d releases, want 3", len(all))
	}
	if all[0].Tag != "v1.0.0" {
		t.Errorf("newest = %q, want v1.0.0", all[0].Tag)
	}

	stg, err := d.ListReleases(ctx, ReleaseFilter{Project: "shop", Tier: "stg", Limit: 1})
	if err != nil {
		t.Fatalf("ListReleases: %v", err)
	}
	if len(stg) != 1 || stg[0].Version != "1.0.0.1" {
		t.Errorf("ListReleases(stg, 1) = %+v, want only 1.0.0.1", stg)
	}
}

func TestRecordRelease_RejectsUnknownTier(t *testing.T) {
	d := testDB(t)
	_, err := d.RecordRelease(context.Background(), Release{Project: "shop", Tier: "qa", Version: "1", Tag: "v1", Image: "x", Workflow: "S"})
	if err == nil {
		t.Fatal("expected check constraint error for tier qa")
	}
}
