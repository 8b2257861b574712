package instid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress_String(t *testing.T) {
	testCases := []struct {
		name        string
		addr        *Address
		expectedStr string
	}{
		{
			name:        "root",
			addr:        Root(),
			expectedStr: "root",
		},
		{
			name: "nested path with indices",
			addr: &Address{
				Path: []PathSegment{NewPathSegment("root"), NewPathSegmentWithIndex("lane", 3), NewPathSegment("alu")},
			},
			expectedStr: "root.lane[3].alu",
		},
		{
			name:        "nil address",
			addr:        nil,
			expectedStr: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedStr, tc.addr.String())
		})
	}
}

func TestAddress_RoundTrip(t *testing.T) {
	for _, id := range []string{"root", "root.cpu.alu", "root.lane[0].adder[15]"} {
		t.Run(id, func(t *testing.T) {
			addr, err := Parse(id)
			require.NoError(t, err)
			assert.Equal(t, id, addr.String())

			again, err := Parse(addr.String())
			require.NoError(t, err)
			assert.True(t, addr.Equal(again))
		})
	}
}

func TestAddress_ChildDoesNotAlias(t *testing.T) {
	parent := Root()
	a := parent.Child(NewPathSegment("a"))
	b := parent.Child(NewPathSegment("b"))

	assert.Equal(t, "root", parent.String())
	assert.Equal(t, "root.a", a.String())
	assert.Equal(t, "root.b", b.String())
	assert.Equal(t, "b", b.Last().Name)
}

func TestAddress_Equal(t *testing.T) {
	assert.True(t, MustParse("root.a[0]").Equal(MustParse("root.a[0]")))
	assert.False(t, MustParse("root.a[0]").Equal(MustParse("root.a[1]")))
	assert.False(t, MustParse("root.a").Equal(MustParse("root.a.b")))
	assert.False(t, MustParse("root").Equal(nil))
	assert.True(t, (*Address)(nil).Equal(nil))
}

func TestAddress_Mangle(t *testing.T) {
	assert.Equal(t, "root__lane_3__alu", MustParse("root.lane[3].alu").Mangle())
}

func TestCompareSegments(t *testing.T) {
	assert.Equal(t, -1, CompareSegments(NewPathSegment("a"), NewPathSegment("b")))
	assert.Equal(t, 1, CompareSegments(NewPathSegmentWithIndex("g", 10), NewPathSegmentWithIndex("g", 2)))
	assert.Equal(t, 0, CompareSegments(NewPathSegment("x"), NewPathSegment("x")))
}

func TestParse_Errors(t *testing.T) {
	for _, raw := range []string{"", "root..a", "root.a[x]", "root.1abc", "root.-"} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			require.Error(t, err)
		})
	}
}
