package instid

import (
	"fmt"
	"strings"
)

// String serializes the Address into its canonical path string representation.
func (a *Address) String() string {
	if a == nil {
		return ""
	}

	var sb strings.Builder
	for i, segment := range a.Path {
		if i > 0 {
			sb.WriteRune('.')
		}
		sb.WriteString(segment.String())
	}
	return sb.String()
}

// String renders a single segment, e.g. `alu[2]`.
func (ps PathSegment) String() string {
	if !ps.HasIndex() {
		return ps.Name
	}
	return fmt.Sprintf("%s[%d]", ps.Name, ps.Index)
}

// Equal checks for deep equality between two Address pointers.
func (a *Address) Equal(other *Address) bool {
	if a == nil || other == nil {
		return a == other
	}
	if len(a.Path) != len(other.Path) {
		return false
	}
	for i := range a.Path {
		if a.Path[i] != other.Path[i] {
			return false
		}
	}
	return true
}

// Child returns a new address one level below a. The receiver is not modified.
func (a *Address) Child(seg PathSegment) *Address {
	path := make([]PathSegment, 0, len(a.Path)+1)
	path = append(path, a.Path...)
	path = append(path, seg)
	return &Address{Path: path}
}

// Last returns the final segment of the address.
func (a *Address) Last() PathSegment {
	return a.Path[len(a.Path)-1]
}

// Mangle returns a flat, identifier-safe rendering of the address, suitable
// for use as a generated module name.
func (a *Address) Mangle() string {
	var sb strings.Builder
	for i, segment := range a.Path {
		if i > 0 {
			sb.WriteString("__")
		}
		sb.WriteString(strings.NewReplacer(".", "_", "-", "_").Replace(segment.Name))
		if segment.HasIndex() {
			sb.WriteString(fmt.Sprintf("_%d", segment.Index))
		}
	}
	return sb.String()
}

// CompareSegments orders segments lexicographically by name, then by index.
// It is the ordering used for sibling instances in the tree.
func CompareSegments(x, y PathSegment) int {
	switch {
	case x.Name < y.Name:
		return -1
	case x.Name > y.Name:
		return 1
	case x.Index < y.Index:
		return -1
	case x.Index > y.Index:
		return 1
	}
	return 0
}
