// Package catalog holds the read-only pose catalog.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yogguru/trainer/internal/domain"
)

// FilterAll disables category and difficulty filtering.
const FilterAll = "All"

// ErrPoseNotFound is returned for unknown pose ids.
var ErrPoseNotFound = errors.New("pose not found")

//go:embed poses.yaml
var builtin []byte

// Catalog is an immutable, ordered set of poses.
type Catalog struct {
	poses []domain.Pose
	index map[string]int
}

// Builtin returns the embedded catalog.
func Builtin() (*Catalog, error) {
	return Parse(builtin)
}

// LoadFile reads a YAML catalog from path. An empty path yields the builtin catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Builtin()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a YAML catalog.
func Load(r io.Reader) (*Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML pose list.
func Parse(data []byte) (*Catalog, error) {
	var poses []domain.Pose
	if err := yaml.Unmarshal(data, &poses); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(poses) == 0 {
		return nil, errors.New("catalog is empty")
	}

	c := &Catalog{poses: poses, index: make(map[string]int, len(poses))}
	for i, p := range poses {
		if p.ID == "" {
			return nil, fmt.Errorf("pose %d: missing id", i)
		}
		if _, dup := c.index[p.ID]; dup {
			return nil, fmt.Errorf("pose %q: duplicate id", p.ID)
		}
		if !slices.Contains(domain.Difficulties, p.Difficulty) {
			return nil, fmt.Errorf("pose %q: unknown difficulty %q", p.ID, p.Difficulty)
		}
		if !slices.Contains(domain.Categories, p.Category) {
			return nil, fmt.Errorf("pose %q: unknown category %q", p.ID, p.Category)
		}
		for joint, v := range p.IdealAngles {
			if v < 0 || v > 180 {
				return nil, fmt.Errorf("pose %q: %s angle %v outside [0, 180]", p.ID, joint, v)
			}
		}
		c.index[p.ID] = i
	}
	return c, nil
}

// All returns every pose in catalog order.
func (c *Catalog) All() []domain.Pose {
	return slices.Clone(c.poses)
}

// Get returns the pose with the given id.
func (c *Catalog) Get(id string) (domain.Pose, error) {
	i, ok := c.index[id]
	if !ok {
		return domain.Pose{}, fmt.Errorf("%w: %s", ErrPoseNotFound, id)
	}
	return c.poses[i], nil
}

// Default is the pose selected when a trainer session opens.
func (c *Catalog) Default() domain.Pose {
	return c.poses[0]
}

// Filter returns poses matching filter and search. filter is FilterAll, a
// category or a difficulty; search matches English or Hindi names, ignoring case.
func (c *Catalog) Filter(filter, search string) []domain.Pose {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]domain.Pose, 0, len(c.poses))
	for _, p := range c.poses {
		if filter != "" && filter != FilterAll && string(p.Category) != filter && string(p.Difficulty) != filter {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.NameEn), search) &&
			!strings.Contains(strings.ToLower(p.NameHi), search) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Filters lists the values accepted by Filter, in display order.
func Filters() []string {
	out := []string{FilterAll}
	for _, d := range domain.Difficulties {
		out = append(out, string(d))
	}
	for _, cat := range domain.Categories {
		out = append(out, string(cat))
	}
	return out
}
