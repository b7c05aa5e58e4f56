// Package identifier implements metadata identification strings.
//
// Every artifact tracked by the engine is named by an ID of one of two forms:
//
//	MID:<class>          class identifier (a provider/category)
//	MID:<class>#<key>    instance identifier (one concrete artifact)
//
// An instance always belongs to exactly one class, derived by dropping the
// "#<key>" suffix. Classes never nest.
package identifier

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Prefix starts every valid identifier.
const Prefix = "MID:"

const instanceSeparator = "#"

// ErrInvalidIdentifier is returned for empty or malformed identifiers.
var ErrInvalidIdentifier = errors.New("invalid metadata identifier")

// ID is a metadata identification string.
type ID string

// NewClass returns the class identifier for providesType.
func NewClass(providesType string) (ID, error) {
	if err := validateClassName(providesType); err != nil {
		return "", err
	}
	return ID(Prefix + providesType), nil
}

// NewInstance returns the identifier of instance key within class providesType.
func NewInstance(providesType, key string) (ID, error) {
	if err := validateClassName(providesType); err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("%w: empty instance key for class %q", ErrInvalidIdentifier, providesType)
	}
	return ID(Prefix + providesType + instanceSeparator + key), nil
}

// MustClass is like NewClass but panics on error. For package-level constants.
func MustClass(providesType string) ID {
	id, err := NewClass(providesType)
	if err != nil {
		panic(err)
	}
	return id
}

// MustInstance is like NewInstance but panics on error.
func MustInstance(providesType, key string) ID {
	id, err := NewInstance(providesType, key)
	if err != nil {
		panic(err)
	}
	return id
}

// Parse validates s and returns it as an ID.
func Parse(s string) (ID, error) {
	id := ID(s)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate reports why id is not a well-formed identifier, or nil.
func (id ID) Validate() error {
	s := string(id)
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	}
	if !strings.HasPrefix(s, Prefix) {
		return fmt.Errorf("%w: %q lacks %q prefix", ErrInvalidIdentifier, s, Prefix)
	}
	class, key, isInstance := strings.Cut(s[len(Prefix):], instanceSeparator)
	if err := validateClassName(class); err != nil {
		return fmt.Errorf("%w (in %q)", err, s)
	}
	if isInstance && key == "" {
		return fmt.Errorf("%w: %q has an empty instance key", ErrInvalidIdentifier, s)
	}
	return nil
}

// IsValid reports whether id is well formed.
func (id ID) IsValid() bool {
	return id.Validate() == nil
}

// IsClass reports whether id is a valid class identifier.
func (id ID) IsClass() bool {
	return id.IsValid() && !strings.Contains(string(id), instanceSeparator)
}

// IsInstance reports whether id is a valid instance identifier.
func (id ID) IsInstance() bool {
	return id.IsValid() && strings.Contains(string(id), instanceSeparator)
}

// ClassName returns the bare class name ("file" for "MID:file#a.txt").
// Returns "" for invalid identifiers.
func (id ID) ClassName() string {
	if !id.IsValid() {
		return ""
	}
	class, _, _ := strings.Cut(string(id)[len(Prefix):], instanceSeparator)
	return class
}

// ClassID returns the class identifier owning id. A class identifier is its
// own class. Returns "" for invalid identifiers.
func (id ID) ClassID() ID {
	class := id.ClassName()
	if class == "" {
		return ""
	}
	return ID(Prefix + class)
}

// InstanceKey returns the key of an instance identifier, or "" for classes.
func (id ID) InstanceKey() string {
	if !id.IsValid() {
		return ""
	}
	_, key, _ := strings.Cut(string(id)[len(Prefix):], instanceSeparator)
	return key
}

func (id ID) String() string {
	return string(id)
}

func validateClassName(class string) error {
	if class == "" {
		return fmt.Errorf("%w: empty class", ErrInvalidIdentifier)
	}
	if strings.Contains(class, instanceSeparator) {
		return fmt.Errorf("%w: class %q contains %q", ErrInvalidIdentifier, class, instanceSeparator)
	}
	if strings.IndexFunc(class, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: class %q contains whitespace", ErrInvalidIdentifier, class)
	}
	return nil
}
