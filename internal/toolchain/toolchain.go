// Package toolchain turns composite device text into a loadable image.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pborman/uuid"
	"github.com/specialistvlad/slotjit/internal/slots"
)

// ErrBuild reports that the toolchain rejected a design.
var ErrBuild = errors.New("toolchain build failed")

// Toolchain builds device images. Build must return promptly once ctx is
// cancelled.
type Toolchain interface {
	Build(ctx context.Context, text string) (slots.Artifact, error)
}

// Simulated pretends to synthesize. Image identifiers are derived from the
// text, so the same design always yields the same image.
type Simulated struct {
	// Delay is how long every build takes.
	Delay time.Duration
	// Fail, when set, rejects every text it returns true for.
	Fail func(text string) bool
}

// Build waits for Delay and returns an artifact named after text.
func (s Simulated) Build(ctx context.Context, text string) (slots.Artifact, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return slots.Artifact{}, context.Cause(ctx)
		}
	} else if err := ctx.Err(); err != nil {
		return slots.Artifact{}, err
	}
	if s.Fail != nil && s.Fail(text) {
		return slots.Artifact{}, fmt.Errorf("%w: simulated failure", ErrBuild)
	}
	id := uuid.NewSHA1(uuid.NameSpace_OID, []byte(text))
	return slots.Artifact{AGFI: "agfi-" + id.String(), AFI: "afi-" + id.String()}, nil
}
