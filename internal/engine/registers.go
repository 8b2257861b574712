package engine

import (
	"bufio"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// RegisterFile is a set of named arbitrary-width values.
type RegisterFile struct {
	vals map[string]*big.Int
}

// NewRegisterFile returns an empty register file.
func NewRegisterFile() *RegisterFile {
	return &RegisterFile{vals: make(map[string]*big.Int)}
}

// Set stores a copy of v under name.
func (rf *RegisterFile) Set(name string, v *big.Int) {
	rf.vals[name] = new(big.Int).Set(v)
}

// Get returns a copy of the value stored under name.
func (rf *RegisterFile) Get(name string) (*big.Int, bool) {
	v, ok := rf.vals[name]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}

// Has reports whether name is present.
func (rf *RegisterFile) Has(name string) bool {
	_, ok := rf.vals[name]
	return ok
}

// Len returns the number of registers.
func (rf *RegisterFile) Len() int {
	return len(rf.vals)
}

// Names returns the register names in sorted order.
func (rf *RegisterFile) Names() []string {
	names := make([]string, 0, len(rf.vals))
	for n := range rf.vals {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (rf *RegisterFile) Clone() *RegisterFile {
	out := NewRegisterFile()
	for n, v := range rf.vals {
		out.Set(n, v)
	}
	return out
}

// Equal reports whether both files hold the same names and values.
func (rf *RegisterFile) Equal(other *RegisterFile) bool {
	if rf.Len() != other.Len() {
		return false
	}
	for n, v := range rf.vals {
		o, ok := other.vals[n]
		if !ok || o.Cmp(v) != 0 {
			return false
		}
	}
	return true
}

// Write emits the radix-16 text form: a count line followed by one
// "<name> <hex>" line per register, sorted by name.
func (rf *RegisterFile) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%d\n", rf.Len()); err != nil {
		return err
	}
	for _, n := range rf.Names() {
		if _, err := fmt.Fprintf(w, "%s %s\n", n, rf.vals[n].Text(16)); err != nil {
			return err
		}
	}
	return nil
}

// ReadRegisterFile parses the form produced by Write from sc.
func ReadRegisterFile(sc *bufio.Scanner) (*RegisterFile, error) {
	if !sc.Scan() {
		return nil, scanErr(sc, "register count")
	}
	count, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil || count < 0 {
		return nil, fmt.Errorf("invalid register count %q", sc.Text())
	}
	rf := NewRegisterFile()
	for i := 0; i < count; i++ {
		if !sc.Scan() {
			return nil, scanErr(sc, "register entry")
		}
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			return nil, fmt.Errorf("invalid register entry %q", sc.Text())
		}
		v, ok := new(big.Int).SetString(fields[1], 16)
		if !ok {
			return nil, fmt.Errorf("invalid register value %q for %s", fields[1], fields[0])
		}
		rf.vals[fields[0]] = v
	}
	return rf, nil
}

func scanErr(sc *bufio.Scanner, what string) error {
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", what, err)
	}
	return fmt.Errorf("reading %s: %w", what, io.ErrUnexpectedEOF)
}
