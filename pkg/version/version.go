package version

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Level describes how completely a requested protocol version can be served
type Level string

const (
	LevelFull    Level = "full"
	LevelPartial Level = "partial"
	LevelNone    Level = "none"
)

// Descriptor describes a single protocol version supported by the server.
// Descriptors are immutable and defined at process start.
type Descriptor struct {
	Version            string     `json:"version"`
	SupportedFeatures  []string   `json:"supported_features,omitempty"`
	DeprecatedFeatures []string   `json:"deprecated_features,omitempty"`
	BreakingChanges    []string   `json:"breaking_changes,omitempty"`
	ReleaseDate        time.Time  `json:"release_date"`
	EndOfLife          *time.Time `json:"end_of_life,omitempty"`
}

// Result is the outcome of a compatibility check. It is derived, never persisted.
type Result struct {
	IsCompatible    bool     `json:"is_compatible"`
	Level           Level    `json:"compatibility_level"`
	Warnings        []string `json:"warnings,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	FallbackVersion string   `json:"fallback_version,omitempty"`
}

// Table is the supported version table. It is append-only across releases
// and fixed for the lifetime of the process, so lookups need no locking.
type Table struct {
	current     string
	descriptors map[string]Descriptor
	ordered     []string
}

// NewTable builds a version table from descriptors. The current version must
// itself be present in the table and every version must parse as semver.
func NewTable(current string, descriptors []Descriptor) (*Table, error) {
	if _, _, _, err := parseSemver(current); err != nil {
		return nil, fmt.Errorf("invalid current version %q: %w", current, err)
	}

	t := &Table{
		current:     current,
		descriptors: make(map[string]Descriptor, len(descriptors)),
	}

	for _, d := range descriptors {
		if _, _, _, err := parseSemver(d.Version); err != nil {
			return nil, fmt.Errorf("invalid version %q in table: %w", d.Version, err)
		}
		if _, exists := t.descriptors[d.Version]; exists {
			return nil, fmt.Errorf("duplicate version %q in table", d.Version)
		}
		t.descriptors[d.Version] = d
		t.ordered = append(t.ordered, d.Version)
	}

	if _, ok := t.descriptors[current]; !ok {
		return nil, fmt.Errorf("current version %q not present in table", current)
	}

	sort.Strings(t.ordered)
	return t, nil
}

// Current returns the server's current protocol version.
func (t *Table) Current() string {
	return t.current
}

// Supported returns the sorted list of supported versions.
func (t *Table) Supported() []string {
	out := make([]string, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// CheckCompatibility evaluates a requested version against the table.
// It is a pure function of the table and its input: no I/O, no side effects.
func (t *Table) CheckCompatibility(requested string) Result {
	return t.checkAt(requested, time.Now())
}

// checkAt is the clock-injected core of CheckCompatibility, split out so
// end-of-life handling is testable without waiting for real dates to pass.
func (t *Table) checkAt(requested string, now time.Time) Result {
	reqMajor, _, _, err := parseSemver(requested)
	if err != nil {
		return Result{
			IsCompatible:    false,
			Level:           LevelNone,
			Warnings:        []string{fmt.Sprintf("version %q is not a valid semantic version", requested)},
			Suggestions:     t.supportSuggestions(),
			FallbackVersion: t.current,
		}
	}

	desc, known := t.descriptors[requested]
	if !known {
		return Result{
			IsCompatible:    false,
			Level:           LevelNone,
			Warnings:        []string{fmt.Sprintf("version %s is not supported", requested)},
			Suggestions:     t.supportSuggestions(),
			FallbackVersion: t.nearestVersion(requested, now),
		}
	}

	if desc.EndOfLife != nil && desc.EndOfLife.Before(now) {
		return Result{
			IsCompatible:    false,
			Level:           LevelNone,
			Warnings:        []string{fmt.Sprintf("version %s reached end of life on %s", requested, desc.EndOfLife.Format("2006-01-02"))},
			Suggestions:     t.supportSuggestions(),
			FallbackVersion: t.nearestVersion(requested, now),
		}
	}

	curMajor, _, _, _ := parseSemver(t.current)

	result := Result{
		IsCompatible: true,
		Level:        LevelFull,
	}

	if len(desc.DeprecatedFeatures) > 0 {
		result.Level = LevelPartial
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("version %s carries deprecated features: %s", requested, strings.Join(desc.DeprecatedFeatures, ", ")))
	}
	if len(desc.BreakingChanges) > 0 {
		result.Level = LevelPartial
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("version %s carries breaking changes: %s", requested, strings.Join(desc.BreakingChanges, ", ")))
	}
	if reqMajor < curMajor {
		result.Level = LevelPartial
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("major version %d is behind the current major %d", reqMajor, curMajor))
	}

	if result.Level == LevelPartial {
		result.Suggestions = append(result.Suggestions,
			fmt.Sprintf("upgrade to version %s", t.current))
		if requested != t.current {
			result.FallbackVersion = t.current
		}
	}

	return result
}

// supportSuggestions lists the supported versions as actionable suggestions.
func (t *Table) supportSuggestions() []string {
	return []string{
		fmt.Sprintf("supported versions: %s", strings.Join(t.ordered, ", ")),
		fmt.Sprintf("use version %s", t.current),
	}
}

// nearestVersion picks the servable table version minimizing the weighted
// distance |Δmajor|*1000 + |Δminor|*100 + |Δpatch|. The requested version
// itself and versions past end of life are excluded, so a rejected version
// is never suggested as its own fallback. Ties favor the current version.
func (t *Table) nearestVersion(requested string, now time.Time) string {
	reqMajor, reqMinor, reqPatch, err := parseSemver(requested)
	if err != nil {
		return t.current
	}

	best := t.current
	bestDist := -1

	for _, v := range t.ordered {
		if v == requested {
			continue
		}
		if desc := t.descriptors[v]; desc.EndOfLife != nil && desc.EndOfLife.Before(now) {
			continue
		}
		major, minor, patch, _ := parseSemver(v)
		dist := abs(major-reqMajor)*1000 + abs(minor-reqMinor)*100 + abs(patch-reqPatch)
		switch {
		case bestDist < 0 || dist < bestDist:
			best = v
			bestDist = dist
		case dist == bestDist && v == t.current:
			best = v
		}
	}

	return best
}

// parseSemver splits a "major.minor.patch" version string into its components.
func parseSemver(s string) (major, minor, patch int, err error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected major.minor.patch, got %q", s)
	}
	if major, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid major component %q", parts[0])
	}
	if minor, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid minor component %q", parts[1])
	}
	if patch, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid patch component %q", parts[2])
	}
	return major, minor, patch, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
