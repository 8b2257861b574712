package module

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/engine"
)

const (
	moduleTag = "MODULE:"
	inputTag  = "INPUT:"
	stateTag  = "STATE:"
)

// Save writes the inputs and state of every node of the subtree, in preorder.
func (n *Node) Save(ctx context.Context, w io.Writer) error {
	logger := ctxlog.FromContext(ctx)
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", n.Size())
	var err error
	n.Walk(func(m *Node) bool {
		logger.Debug("Saving module.", "module", m.id.String())
		fmt.Fprintf(bw, "%s\n%s\n%s\n", moduleTag, m.id, inputTag)
		if err = m.engine.Input().Write(bw); err != nil {
			return false
		}
		fmt.Fprintf(bw, "%s\n", stateTag)
		err = m.engine.State().Write(bw)
		return err == nil
	})
	if err != nil {
		return fmt.Errorf("saving module state: %w", err)
	}
	return bw.Flush()
}

type saved struct {
	input, state *engine.RegisterFile
}

// Restart loads a stream written by Save. Entries without a live node are
// ignored and live nodes without an entry are left untouched.
func (n *Node) Restart(ctx context.Context, r io.Reader) error {
	logger := ctxlog.FromContext(ctx)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return fmt.Errorf("reading module count: %w", scanErr(sc))
	}
	count, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
	if err != nil || count < 0 {
		return fmt.Errorf("invalid module count %q", sc.Text())
	}

	entries := make(map[string]saved, count)
	for i := 0; i < count; i++ {
		if err := expect(sc, moduleTag); err != nil {
			return err
		}
		if !sc.Scan() {
			return fmt.Errorf("reading module id: %w", scanErr(sc))
		}
		id := strings.TrimSpace(sc.Text())
		if err := expect(sc, inputTag); err != nil {
			return err
		}
		in, err := engine.ReadRegisterFile(sc)
		if err != nil {
			return fmt.Errorf("reading inputs of %s: %w", id, err)
		}
		if err := expect(sc, stateTag); err != nil {
			return err
		}
		st, err := engine.ReadRegisterFile(sc)
		if err != nil {
			return fmt.Errorf("reading state of %s: %w", id, err)
		}
		entries[id] = saved{input: in, state: st}
	}

	n.Walk(func(m *Node) bool {
		e, ok := entries[m.id.String()]
		if !ok {
			return true
		}
		logger.Debug("Restarting module.", "module", m.id.String())
		m.engine.SetInput(e.input)
		m.engine.SetState(e.state)
		return true
	})
	return nil
}

func expect(sc *bufio.Scanner, tag string) error {
	if !sc.Scan() {
		return fmt.Errorf("expected %s: %w", tag, scanErr(sc))
	}
	if got := strings.TrimSpace(sc.Text()); got != tag {
		return fmt.Errorf("expected %s, got %q", tag, got)
	}
	return nil
}

func scanErr(sc *bufio.Scanner) error {
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
