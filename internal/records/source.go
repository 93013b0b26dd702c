package records

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"backend-alluviamaps/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
)

// Source is the remote data source behind the cache.
type Source interface {
	PublicTrails(ctx context.Context) ([]Trail, error)
	PublicSites(ctx context.Context) ([]Site, error)
	SearchTrails(ctx context.Context, query string) ([]Trail, error)
	SearchSites(ctx context.Context, query string) ([]Site, error)
}

const trailColumns = `id, title, COALESCE(description,''), COALESCE(coordinates,'[]'::jsonb), difficulty,
		       COALESCE(distance_km,0), COALESCE(tags,'{}'), is_public, created_by, created_at, updated_at`

const siteColumns = `id, name, COALESCE(description,''), coordinates, current_status, gold_found,
		       COALESCE(site_type,''), COALESCE(historical_context,''), is_public, created_by, created_at, updated_at`

// PostgresSource reads the trails and sites tables. Coordinates are jsonb;
// rows whose coordinates cannot be decoded are logged and skipped.
type PostgresSource struct {
	db  db.Querier
	log *slog.Logger
}

func NewPostgresSource(db db.Querier) *PostgresSource {
	return &PostgresSource{db: db, log: slog.Default().With("component", "records.postgres")}
}

func (s *PostgresSource) PublicTrails(ctx context.Context) ([]Trail, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+trailColumns+`
		FROM trails
		WHERE is_public = true
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query trails: %w", err)
	}
	return s.scanTrails(rows)
}

func (s *PostgresSource) SearchTrails(ctx context.Context, query string) ([]Trail, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+trailColumns+`
		FROM trails
		WHERE is_public = true AND (title ILIKE $1 OR description ILIKE $1)
		ORDER BY created_at DESC
	`, likePattern(query))
	if err != nil {
		return nil, fmt.Errorf("search trails: %w", err)
	}
	return s.scanTrails(rows)
}

func (s *PostgresSource) PublicSites(ctx context.Context) ([]Site, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+siteColumns+`
		FROM sites
		WHERE is_public = true
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	return s.scanSites(rows)
}

func (s *PostgresSource) SearchSites(ctx context.Context, query string) ([]Site, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+siteColumns+`
		FROM sites
		WHERE is_public = true AND (name ILIKE $1 OR description ILIKE $1)
		ORDER BY created_at DESC
	`, likePattern(query))
	if err != nil {
		return nil, fmt.Errorf("search sites: %w", err)
	}
	return s.scanSites(rows)
}

func (s *PostgresSource) scanTrails(rows pgx.Rows) ([]Trail, error) {
	defer rows.Close()

	trails := []Trail{}
	skipped := 0
	for rows.Next() {
		var (
			t      Trail
			coords []byte
			diff   string
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &coords, &diff, &t.DistanceKm, &t.Tags, &t.IsPublic, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan trail: %w", err)
		}
		path, err := decodePath(coords)
		if err != nil {
			s.log.Warn("skipping trail with bad coordinates", "trail", t.ID, "err", err)
			skipped++
			continue
		}
		t.Coordinates = path
		t.Difficulty = Difficulty(diff)
		trails = append(trails, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read trails: %w", err)
	}
	if skipped > 0 {
		s.log.Warn("trails skipped", "count", skipped, "kept", len(trails))
	}
	return trails, nil
}

func (s *PostgresSource) scanSites(rows pgx.Rows) ([]Site, error) {
	defer rows.Close()

	sites := []Site{}
	skipped := 0
	for rows.Next() {
		var (
			st     Site
			coords []byte
			status string
		)
		if err := rows.Scan(&st.ID, &st.Name, &st.Description, &coords, &status, &st.ResourceFound, &st.SiteType, &st.HistoricalContext, &st.IsPublic, &st.CreatedBy, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		point, err := decodePoint(coords)
		if err != nil {
			s.log.Warn("skipping site with bad coordinates", "site", st.ID, "err", err)
			skipped++
			continue
		}
		st.Coordinates = point
		st.Status = SiteStatus(status)
		sites = append(sites, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sites: %w", err)
	}
	if skipped > 0 {
		s.log.Warn("sites skipped", "count", skipped, "kept", len(sites))
	}
	return sites, nil
}

func decodePath(raw []byte) ([]orb.Point, error) {
	var pairs [][2]float64
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, err
	}
	path := make([]orb.Point, len(pairs))
	for i, p := range pairs {
		path[i] = orb.Point(p)
	}
	return path, nil
}

func decodePoint(raw []byte) (orb.Point, error) {
	var pair [2]float64
	if err := json.Unmarshal(raw, &pair); err != nil {
		return orb.Point{}, err
	}
	return orb.Point(pair), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps query for a substring ILIKE match with wildcards escaped.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}
