package identifier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClass(t *testing.T) {
	id, err := NewClass("file")
	require.NoError(t, err)
	require.Equal(t, ID("MID:file"), id)
	require.True(t, id.IsClass())
	require.False(t, id.IsInstance())
	require.Equal(t, "file", id.ClassName())
	require.Equal(t, id, id.ClassID())
	require.Empty(t, id.InstanceKey())
}

func TestNewInstance(t *testing.T) {
	id, err := NewInstance("file", "src/a.txt")
	require.NoError(t, err)
	require.Equal(t, ID("MID:file#src/a.txt"), id)
	require.True(t, id.IsInstance())
	require.False(t, id.IsClass())
	require.Equal(t, "file", id.ClassName())
	require.Equal(t, ID("MID:file"), id.ClassID())
	require.Equal(t, "src/a.txt", id.InstanceKey())
}

func TestNewInstance_KeyMayContainSeparator(t *testing.T) {
	id := MustInstance("anchor", "page#section")
	require.Equal(t, "page#section", id.InstanceKey())
	require.Equal(t, ID("MID:anchor"), id.ClassID())
}

func TestNewInstance_RejectsEmptyKey(t *testing.T) {
	_, err := NewInstance("file", "")
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestNewClass_Rejects(t *testing.T) {
	for _, class := range []string{"", "a#b", "has space", "tab\there"} {
		_, err := NewClass(class)
		require.ErrorIs(t, err, ErrInvalidIdentifier, class)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		id    ID
		valid bool
	}{
		{"MID:X", true},
		{"MID:X#1", true},
		{"", false},
		{"X#1", false},
		{"MID:", false},
		{"MID:#1", false},
		{"MID:X#", false},
		{"MID:a b#1", false},
	}
	for _, tt := range tests {
		err := tt.id.Validate()
		if tt.valid {
			require.NoError(t, err, tt.id)
		} else {
			require.ErrorIs(t, err, ErrInvalidIdentifier, tt.id)
		}
		require.Equal(t, tt.valid, tt.id.IsValid(), tt.id)
	}
}

func TestInvalidIdentifierAccessors(t *testing.T) {
	id := ID("nope")
	require.False(t, id.IsClass())
	require.False(t, id.IsInstance())
	require.Empty(t, id.ClassName())
	require.Empty(t, id.ClassID())
	require.Empty(t, id.InstanceKey())
}

func TestParse(t *testing.T) {
	id, err := Parse("MID:Y#1")
	require.NoError(t, err)
	require.Equal(t, MustInstance("Y", "1"), id)

	_, err = Parse("Y:1")
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestMustClass_Panics(t *testing.T) {
	require.Panics(t, func() { MustClass("") })
	require.Panics(t, func() { MustInstance("X", "") })
}
