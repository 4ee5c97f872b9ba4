package registry

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxFields        = 500
	maxPathSegments  = 4
	maxSegmentLength = 100
)

var validSegment = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks a registry definition before it is put into service.
// Returns an error naming the first offending path, nil if the registry is valid.
func Validate(r Registry) error {
	if len(r) == 0 {
		return fmt.Errorf("registry cannot be empty, must contain at least one field definition")
	}

	if len(r) > maxFields {
		return fmt.Errorf("registry contains %d fields, maximum allowed is %d", len(r), maxFields)
	}

	for path, field := range r {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("invalid field path %q: %w", path, err)
		}

		if !isValidFieldType(field.Type) {
			return fmt.Errorf("field %q has invalid type %q (must be one of: string, number, boolean, enum, date)", path, field.Type)
		}

		if field.Type == TypeEnum && len(field.Options) == 0 {
			return fmt.Errorf("enum field %q must declare at least one option", path)
		}
		if field.Type != TypeEnum && len(field.Options) > 0 {
			return fmt.Errorf("field %q declares enum options but has type %q", path, field.Type)
		}

		seen := make(map[string]bool, len(field.Options))
		for _, opt := range field.Options {
			if opt == "" {
				return fmt.Errorf("enum field %q has an empty option", path)
			}
			if seen[opt] {
				return fmt.Errorf("enum field %q declares option %q twice", path, opt)
			}
			seen[opt] = true
		}
	}

	return nil
}

// validatePath validates a dotted field path segment by segment
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	segments := strings.Split(path, ".")
	if len(segments) > maxPathSegments {
		return fmt.Errorf("path has %d segments, maximum allowed is %d", len(segments), maxPathSegments)
	}

	for _, seg := range segments {
		if len(seg) == 0 {
			return fmt.Errorf("path contains an empty segment")
		}
		if len(seg) > maxSegmentLength {
			return fmt.Errorf("segment %q exceeds maximum length of %d characters", seg, maxSegmentLength)
		}
		if !validSegment.MatchString(seg) {
			return fmt.Errorf("segment %q must start with a letter or underscore, followed by letters, digits, or underscores", seg)
		}
		if isReservedWord(seg) {
			return fmt.Errorf("cannot use reserved word %q as a path segment", seg)
		}
	}

	return nil
}

// isValidFieldType checks if a type name is one of the declared field types
func isValidFieldType(t FieldType) bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeEnum, TypeDate:
		return true
	}
	return false
}

// isReservedWord checks whether a segment collides with the formula language.
// Function names and literals are reserved so a field path can never shadow them.
func isReservedWord(name string) bool {
	reserved := map[string]bool{
		"min":   true,
		"max":   true,
		"round": true,
		"abs":   true,
		"true":  true,
		"false": true,
		"null":  true,
	}

	return reserved[name]
}
