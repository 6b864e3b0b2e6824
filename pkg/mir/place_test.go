package mir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlace(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Place
		str  string
	}{
		{"bare local", "_1", PlaceOf(1), "_1"},
		{"deref", "*_2", PlaceOf(2).Deref(), "(*_2)"},
		{"parenthesized deref", "(*_2)", PlaceOf(2).Deref(), "(*_2)"},
		{"field of deref", "(*_2).0", PlaceOf(2).Deref().Field(0), "(*_2).0"},
		{"nested fields", "_1.0.1", PlaceOf(1).Field(0).Field(1), "_1.0.1"},
		{"index", "_3[_4]", PlaceOf(3).Index(4), "_3[_4]"},
		{"double deref", "*(*_2)", PlaceOf(2).Deref().Deref(), "(*(*_2))"},
		{"deref binds loosely", "*_2.1", PlaceOf(2).Field(1).Deref(), "(*_2.1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePlace(tt.text)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, tt.str, got.String())

			again, err := ParsePlace(got.String())
			require.NoError(t, err)
			assert.True(t, got.Equal(again))
		})
	}
}

func TestParsePlaceErrors(t *testing.T) {
	for _, text := range []string{"", "x", "_", "(_1", "_1[", "_1.a", "_1 junk"} {
		_, err := ParsePlace(text)
		assert.Error(t, err, "input %q", text)
	}
}

func TestPlacePrefixAndOverlap(t *testing.T) {
	base := PlaceOf(1)
	field := base.Field(0)
	other := base.Field(1)

	assert.True(t, base.IsPrefixOf(field))
	assert.False(t, field.IsPrefixOf(base))
	assert.True(t, field.Overlaps(base))
	assert.False(t, field.Overlaps(other))
	assert.True(t, PlaceOf(2).Index(3).Overlaps(PlaceOf(2).Index(4)))
	assert.False(t, PlaceOf(2).Overlaps(PlaceOf(3)))
}

func TestPlaceProjectionDoesNotAlias(t *testing.T) {
	base := PlaceOf(1).Field(0)
	a := base.Field(1)
	b := base.Field(2)

	assert.Equal(t, "_1.0.1", a.String())
	assert.Equal(t, "_1.0.2", b.String())
}
