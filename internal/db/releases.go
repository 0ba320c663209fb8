package db

import (
	"context"
	"fmt"
	"time"
)

// Release is one completed release.
type Release struct {
	ID         int64
	Project    string
	Tier       string
	Version    string
	Tag        string
	Image      string
	Workflow   string
	ReleasedBy string
	ReleasedAt time.Time
}

// ReleaseFilter narrows ListReleases. Zero fields match everything.
type ReleaseFilter struct {
	Project string
	Tier    string
	Limit   int
}

// RecordRelease inserts a release and returns its id.
func (d *DB) RecordRelease(ctx context.Context, r Release) (int64, error) {
	var id int64
	err := d.pool.QueryRow(ctx,
		`INSERT INTO releases (project, tier, version, tag, image, workflow, released_by)
         VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		r.Project, r.Tier, r.Version, r.Tag, r.Image, r.Workflow, r.ReleasedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record release %s: %w", r.Tag, err)
	}
	return id, nil
}

// ListReleases returns releases newest first.
func (d *DB) ListReleases(ctx context.Context, f ReleaseFilter) ([]Release, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.pool.Query(ctx,
		`SELECT id, project, tier, version, tag, image, workflow, released_by, released_at
         FROM releases
         WHERE ($1 = '' OR project = $1) AND ($2 = '' OR tier = $2)
         ORDER BY released_at DESC, id DESC
         LIMIT $3`,
		f.Project, f.Tier, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	defer rows.Close()

	var releases []Release
	for rows.Next() {
		var r Release
		if err := rows.Scan(&r.ID, &r.Project, &r.Tier, &r.Version, &r.Tag, &r.Image, &r.Workflow, &r.ReleasedBy, &r.ReleasedAt); err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		releases = append(releases, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	return releases, nil
}
