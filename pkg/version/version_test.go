package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *Table {
	t.Helper()

	eol := time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)
	table, err := NewTable("2.0.0", []Descriptor{
		{Version: "0.9.0", ReleaseDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), EndOfLife: &eol},
		{Version: "1.0.0", ReleaseDate: time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), DeprecatedFeatures: []string{"legacy-auth"}},
		{Version: "1.5.0", ReleaseDate: time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)},
		{Version: "2.0.0", ReleaseDate: time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	return table
}

func TestNewTable_RejectsInvalidVersions(t *testing.T) {
	// Given a descriptor with a malformed version string
	_, err := NewTable("2.0.0", []Descriptor{{Version: "not-semver"}})

	// Then table construction fails
	assert.Error(t, err)
}

func TestNewTable_RequiresCurrentInTable(t *testing.T) {
	// Given a current version missing from the descriptors
	_, err := NewTable("3.0.0", []Descriptor{{Version: "2.0.0"}})

	// Then table construction fails
	assert.Error(t, err)
}

func TestCheckCompatibility_EveryTableVersionIsCompatible(t *testing.T) {
	// Given the supported version table (ignoring end-of-life entries)
	table := testTable(t)

	// When checking each non-EOL version in the table
	for _, v := range []string{"1.0.0", "1.5.0", "2.0.0"} {
		result := table.CheckCompatibility(v)

		// Then the exact version is compatible
		assert.True(t, result.IsCompatible, "version %s should be compatible", v)
	}
}

func TestCheckCompatibility_UnknownVersion(t *testing.T) {
	// Given a version not in the table
	table := testTable(t)

	// When checking compatibility
	result := table.CheckCompatibility("3.1.4")

	// Then the result is incompatible with non-empty suggestions
	assert.False(t, result.IsCompatible)
	assert.Equal(t, LevelNone, result.Level)
	assert.NotEmpty(t, result.Suggestions)
	assert.NotEmpty(t, result.FallbackVersion)
}

func TestCheckCompatibility_MalformedVersion(t *testing.T) {
	// Given a string that is not semver
	table := testTable(t)

	// When checking compatibility
	result := table.CheckCompatibility("latest")

	// Then the result is incompatible and suggests the current version
	assert.False(t, result.IsCompatible)
	assert.Equal(t, "2.0.0", result.FallbackVersion)
}

func TestCheckCompatibility_EndOfLife(t *testing.T) {
	// Given a version whose end-of-life date has passed
	table := testTable(t)

	// When checking compatibility
	result := table.checkAt("0.9.0", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	// Then the version is incompatible regardless of feature match
	assert.False(t, result.IsCompatible)
	assert.Equal(t, LevelNone, result.Level)

	// And the fallback is a live version, never the dead one itself
	assert.NotEqual(t, "0.9.0", result.FallbackVersion)
	assert.Equal(t, "1.5.0", result.FallbackVersion)
}

func TestCheckCompatibility_BeforeEndOfLife(t *testing.T) {
	// Given a version checked before its end-of-life date
	table := testTable(t)

	// When checking compatibility at an earlier clock
	result := table.checkAt("0.9.0", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

	// Then the version is still served (partial: major behind current)
	assert.True(t, result.IsCompatible)
	assert.Equal(t, LevelPartial, result.Level)
}

func TestCheckCompatibility_PartialForDeprecatedFeatures(t *testing.T) {
	// Given a version carrying deprecated features
	table := testTable(t)

	// When checking compatibility
	result := table.CheckCompatibility("1.0.0")

	// Then compatibility degrades to partial with the current version as fallback
	assert.True(t, result.IsCompatible)
	assert.Equal(t, LevelPartial, result.Level)
	assert.Equal(t, "2.0.0", result.FallbackVersion)
	assert.NotEmpty(t, result.Warnings)
}

func TestCheckCompatibility_PartialForMajorBehind(t *testing.T) {
	// Given a clean version whose major is behind the server's
	table := testTable(t)

	// When checking compatibility
	result := table.CheckCompatibility("1.5.0")

	// Then compatibility is partial
	assert.True(t, result.IsCompatible)
	assert.Equal(t, LevelPartial, result.Level)
}

func TestCheckCompatibility_FullForCurrent(t *testing.T) {
	// Given the current version
	table := testTable(t)

	// When checking compatibility
	result := table.CheckCompatibility("2.0.0")

	// Then compatibility is full with no fallback
	assert.True(t, result.IsCompatible)
	assert.Equal(t, LevelFull, result.Level)
	assert.Empty(t, result.FallbackVersion)
}

func TestCheckCompatibility_Idempotent(t *testing.T) {
	// Given any requested version
	table := testTable(t)

	// When checking compatibility twice with the same input
	first := table.CheckCompatibility("1.0.0")
	second := table.CheckCompatibility("1.0.0")

	// Then the results are identical (no hidden state mutation)
	assert.Equal(t, first, second)
}

func TestNearestVersion_WeightedDistance(t *testing.T) {
	// Given the version table
	table := testTable(t)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// When requesting versions near known entries
	// 1.4.0 is distance 100 from 1.5.0 but 400 from 1.0.0
	assert.Equal(t, "1.5.0", table.nearestVersion("1.4.0", now))
	// 2.0.1 is distance 1 from 2.0.0
	assert.Equal(t, "2.0.0", table.nearestVersion("2.0.1", now))
	// Major distance dominates minor and patch
	assert.Equal(t, "2.0.0", table.nearestVersion("3.9.9", now))
}

func TestNearestVersion_SkipsRequestedAndDeadVersions(t *testing.T) {
	// Given the table containing an end-of-life entry
	table := testTable(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// When the requested version is itself in the table
	got := table.nearestVersion("1.0.0", now)

	// Then the requested version is not its own fallback
	assert.NotEqual(t, "1.0.0", got)
	assert.Equal(t, "1.5.0", got)

	// And a request right next to the dead version skips it
	assert.NotEqual(t, "0.9.0", table.nearestVersion("0.9.1", now))
}

func TestNearestVersion_TieFavorsCurrent(t *testing.T) {
	// Given a table where two versions are equidistant from the request
	table, err := NewTable("3.0.0", []Descriptor{
		{Version: "1.0.0"},
		{Version: "3.0.0"},
	})
	require.NoError(t, err)

	// When the request sits exactly between them
	got := table.nearestVersion("2.0.0", time.Now())

	// Then the tie favors the current version
	assert.Equal(t, "3.0.0", got)
}
