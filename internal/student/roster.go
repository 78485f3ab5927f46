package student

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SupportedRosterVersions is the roster schema range this build reads.
const SupportedRosterVersions = ">= 1.0.0, < 2.0.0"

// Roster errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported roster version")
	ErrMissingID          = errors.New("student has no id")
	ErrDuplicateID        = errors.New("duplicate student id")
	ErrUnknownID          = errors.New("unknown student id")
)

// Roster is the on-disk list of students. JSON rosters parse too, since YAML is a
// superset of JSON.
type Roster struct {
	Version  string    `yaml:"version"`
	Students []Student `yaml:"students"`
}

// LoadRoster reads and validates the roster at path.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster %s: %w", path, err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes and validates roster bytes.
func ParseRoster(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the schema version and that every student has a unique ID.
func (r *Roster) Validate() error {
	if err := checkVersion(r.Version); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(r.Students))
	for i, s := range r.Students {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("students[%d]: %w", i, ErrMissingID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

func checkVersion(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: version is required", ErrUnsupportedVersion)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrUnsupportedVersion, raw, err)
	}
	c, err := semver.NewConstraint(SupportedRosterVersions)
	if err != nil {
		return fmt.Errorf("parsing version constraint: %w", err)
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s (want %s)", ErrUnsupportedVersion, v, SupportedRosterVersions)
	}
	return nil
}

// Select returns the students whose IDs are in ids, in roster order. An empty ids
// selects everyone. Unknown IDs are an error.
func (r *Roster) Select(ids []string) ([]Student, error) {
	if len(ids) == 0 {
		out := make([]Student, len(r.Students))
		copy(out, r.Students)
		return out, nil
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = false
	}

	out := make([]Student, 0, len(ids))
	for _, s := range r.Students {
		if _, ok := want[s.ID]; ok {
			want[s.ID] = true
			out = append(out, s)
		}
	}

	var missing []string
	for _, id := range ids {
		if !want[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownID, strings.Join(missing, ", "))
	}
	return out, nil
}
