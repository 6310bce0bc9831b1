// Package catalog exposes the purchasable course catalog. Courses are loaded
// from configuration (inline or a standalone YAML file) and served read-only.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/coursepay/server/internal/config"
)

// ErrCourseNotFound is returned when a course ID is not in the catalog.
var ErrCourseNotFound = errors.New("catalog: course not found")

// Course is a purchasable course with pricing in minor currency units.
type Course struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Repository serves the course catalog.
type Repository struct {
	courses map[string]Course
}

// NewRepository builds a repository from catalog configuration. A configured
// Path takes precedence over inline courses.
func NewRepository(cfg config.CatalogConfig) (*Repository, error) {
	source := cfg.Courses
	if cfg.Path != "" {
		loaded, err := loadFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		source = loaded
	}

	courses := make(map[string]Course, len(source))
	for id, c := range source {
		courses[id] = Course{
			ID:       id,
			Name:     c.Name,
			Amount:   c.Amount,
			Currency: c.Currency,
		}
	}
	return &Repository{courses: courses}, nil
}

// loadFile reads a standalone catalog YAML file of the form
// courses: {<id>: {name, amount, currency}}.
func loadFile(path string) (map[string]config.Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var doc struct {
		Courses map[string]config.Course `yaml:"courses"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	return doc.Courses, nil
}

// Get retrieves a course by ID.
func (r *Repository) Get(id string) (Course, error) {
	course, ok := r.courses[id]
	if !ok {
		return Course{}, ErrCourseNotFound
	}
	return course, nil
}

// List returns all courses sorted by ID.
func (r *Repository) List() []Course {
	out := make([]Course, 0, len(r.courses))
	for _, c := range r.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
