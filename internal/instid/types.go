package instid

// RootName is the name of the single top-level segment of every address.
const RootName = "root"

// PathSegment represents a single component of an instantiation path, e.g.
// `alu` or `alu[2]`.
type PathSegment struct {
	Name  string
	Index int // -1 indicates no index is present.
}

// NewPathSegment creates a new path segment without an index.
func NewPathSegment(name string) PathSegment {
	return PathSegment{Name: name, Index: -1}
}

// NewPathSegmentWithIndex creates a new path segment that includes an index.
func NewPathSegmentWithIndex(name string, index int) PathSegment {
	return PathSegment{Name: name, Index: index}
}

// HasIndex returns true if the path segment has an explicit index.
func (ps PathSegment) HasIndex() bool {
	return ps.Index != -1
}

// Address is the structured identifier of one module instance.
type Address struct {
	Path []PathSegment
}

// Root returns the address of the root instance.
func Root() *Address {
	return &Address{Path: []PathSegment{NewPathSegment(RootName)}}
}
