package plaque

import (
	"errors"
	"math"
	"strings"
)

// Status selects plaques by visit state.
type Status string

// Status filter values.
const (
	StatusAll       Status = "all"
	StatusVisited   Status = "visited"
	StatusUnvisited Status = "unvisited"
)

// Location selects plaques by geographic scope.
type Location string

// Location filter values.
const (
	LocationAll        Location = "all"
	LocationCityCentre Location = "city_centre"
)

// Filter parsing errors.
var (
	ErrInvalidStatus   = errors.New("invalid status filter")
	ErrInvalidLocation = errors.New("invalid location filter")
)

// ParseStatus converts a query value into a Status. Empty means all.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusVisited:
		return StatusVisited, nil
	case StatusUnvisited:
		return StatusUnvisited, nil
	default:
		return "", ErrInvalidStatus
	}
}

// ParseLocation converts a query value into a Location. Empty means all.
func ParseLocation(s string) (Location, error) {
	switch Location(strings.ToLower(strings.TrimSpace(s))) {
	case "", LocationAll:
		return LocationAll, nil
	case LocationCityCentre, "city-centre", "citycentre":
		return LocationCityCentre, nil
	default:
		return "", ErrInvalidLocation
	}
}

// Filter is the set of predicates applied by Project.
type Filter struct {
	Status   Status
	Location Location
	Search   string
}

// Project returns the plaques matching all three predicates, in input order.
// Search is a case-insensitive substring match on title or location.
func Project(plaques []Enriched, f Filter) []Enriched {
	term := strings.ToLower(f.Search)

	out := make([]Enriched, 0, len(plaques))
	for _, p := range plaques {
		if !matchesStatus(p, f.Status) || !matchesLocation(p, f.Location) {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(p.Title), term) &&
			!strings.Contains(strings.ToLower(p.Location), term) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesStatus(p Enriched, s Status) bool {
	switch s {
	case StatusVisited:
		return p.Visited
	case StatusUnvisited:
		return !p.Visited
	default:
		return true
	}
}

func matchesLocation(p Enriched, l Location) bool {
	if l == LocationCityCentre {
		return p.CityCentre
	}
	return true
}

// Summary is the progress over a geographic scope.
type Summary struct {
	Visited   int  `json:"visited"`
	Unvisited int  `json:"unvisited"`
	Total     int  `json:"total"`
	Percent   int  `json:"percent"`
	Complete  bool `json:"complete"`
}

// Summarize counts progress over the location-filtered plaques only.
// Status and search filters never affect the counts.
func Summarize(plaques []Enriched, l Location) Summary {
	var s Summary
	for _, p := range plaques {
		if !matchesLocation(p, l) {
			continue
		}
		s.Total++
		if p.Visited {
			s.Visited++
		}
	}
	s.Unvisited = s.Total - s.Visited
	if s.Total > 0 {
		s.Percent = int(math.Round(float64(s.Visited) / float64(s.Total) * 100))
		s.Complete = s.Visited == s.Total
	}
	return s
}
