package services

import (
	"strings"

	"techtribe-client/internal/models"
)

// FilterSpec narrows the visible feed. Zero values are inactive.
type FilterSpec struct {
	MinAge     *int
	MaxAge     *int
	Gender     string
	Skills     []string
	SearchTerm string
}

// Active reports whether any predicate is set
func (f FilterSpec) Active() bool {
	return f.MinAge != nil || f.MaxAge != nil || f.Gender != "" || len(f.Skills) > 0 || f.SearchTerm != ""
}

// ApplyFilters returns the candidates that satisfy every active predicate, in input order.
// Search is a case-insensitive substring match on first name, last name, about or any skill.
// The term is used as typed; surrounding whitespace is part of it.
// Every requested skill must be a case-insensitive substring of some candidate skill.
func ApplyFilters(candidates []models.FeedCandidate, f FilterSpec) []models.FeedCandidate {
	search := strings.ToLower(f.SearchTerm)

	var skills []string
	for _, s := range f.Skills {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			skills = append(skills, s)
		}
	}

	out := make([]models.FeedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if f.MinAge != nil && c.Age < *f.MinAge {
			continue
		}
		if f.MaxAge != nil && c.Age > *f.MaxAge {
			continue
		}
		if f.Gender != "" && c.Gender != f.Gender {
			continue
		}
		if search != "" && !matchesSearch(c, search) {
			continue
		}
		if !hasAllSkills(c.Skills, skills) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesSearch(c models.FeedCandidate, term string) bool {
	if strings.Contains(strings.ToLower(c.FirstName), term) ||
		strings.Contains(strings.ToLower(c.LastName), term) ||
		strings.Contains(strings.ToLower(c.About), term) {
		return true
	}
	for _, s := range c.Skills {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func hasAllSkills(have []string, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if strings.Contains(strings.ToLower(h), w) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
