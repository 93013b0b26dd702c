package records

import (
	"time"

	"github.com/paulmach/orb"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type SiteStatus string

const (
	StatusActive     SiteStatus = "active"
	StatusAbandoned  SiteStatus = "abandoned"
	StatusRestricted SiteStatus = "restricted"
)

// Kind selects a record collection.
type Kind string

const (
	KindTrails Kind = "trails"
	KindSites  Kind = "sites"
)

// Trail is a walking track. Coordinates are [lng, lat] and form a path.
type Trail struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Coordinates []orb.Point `json:"coordinates"`
	Difficulty  Difficulty  `json:"difficulty"`
	DistanceKm  float64     `json:"distance_km"`
	Tags        []string    `json:"tags"`
	IsPublic    bool        `json:"is_public"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Site is a historical mining site located by a single [lng, lat] point.
type Site struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Coordinates       orb.Point  `json:"coordinates"`
	Status            SiteStatus `json:"current_status"`
	ResourceFound     bool       `json:"gold_found"`
	SiteType          string     `json:"site_type"`
	HistoricalContext string     `json:"historical_context"`
	IsPublic          bool       `json:"is_public"`
	CreatedBy         string     `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// InBounds is the result of a bounding-box fetch.
type InBounds struct {
	Trails []Trail `json:"trails"`
	Sites  []Site  `json:"sites"`
}
