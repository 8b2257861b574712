package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/slots"
)

// MaxApps is the largest number of application slots a device image holds.
const MaxApps = 32

var appNum = regexp.MustCompile(`app_num == (\d+)`)

// NumApps returns the number of application slots text selects between,
// rounded up to a power of two.
func NumApps(text string) (int, error) {
	n := 0
	for _, m := range appNum.FindAllStringSubmatch(text, -1) {
		i, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		n = max(n, i+1)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no application slots in design", ErrBuild)
	}
	if n > MaxApps {
		return 0, fmt.Errorf("%w: %d application slots exceed %d", ErrBuild, n, MaxApps)
	}
	rounded := 1
	for rounded < n {
		rounded *= 2
	}
	return rounded, nil
}

// Script builds images by running an external build command in a scratch
// directory. The directory is recreated for every build: Template, if set, is
// copied into it, the design is written to design/program_logic.v and
// design/UserParams.sv, and Command runs with the directory as its working
// directory. A successful command leaves the image identifiers in
// build/scripts/agfi.txt and build/scripts/afi.txt.
type Script struct {
	Dir      string
	Template string
	Command  string
	Args     []string
	// Grace is how long a cancelled command gets after SIGINT before it is
	// killed.
	Grace time.Duration
}

// Build runs one build.
func (s Script) Build(ctx context.Context, text string) (slots.Artifact, error) {
	logger := ctxlog.FromContext(ctx).With("dir", s.Dir)

	apps, err := NumApps(text)
	if err != nil {
		return slots.Artifact{}, err
	}
	if err := s.prepare(text, apps); err != nil {
		return slots.Artifact{}, err
	}
	logger.Info("Starting build.", "length", len(text), "apps", apps)

	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Dir = s.Dir
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = s.Grace
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = time.Second
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return slots.Artifact{}, context.Cause(ctx)
		}
		logger.Warn("Build command failed.", "error", err, "output", tail(out.String(), 2048))
		return slots.Artifact{}, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	agfi, err := readID(filepath.Join(s.Dir, "build", "scripts", "agfi.txt"))
	if err != nil {
		return slots.Artifact{}, err
	}
	afi, err := readID(filepath.Join(s.Dir, "build", "scripts", "afi.txt"))
	if err != nil {
		return slots.Artifact{}, err
	}
	logger.Info("Build succeeded.", "agfi", agfi)
	return slots.Artifact{AGFI: agfi, AFI: afi}, nil
}

func (s Script) prepare(text string, apps int) error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("failed to clear build directory: %w", err)
	}
	if s.Template != "" {
		if err := os.CopyFS(s.Dir, os.DirFS(s.Template)); err != nil {
			return fmt.Errorf("failed to copy build template: %w", err)
		}
	}
	design := filepath.Join(s.Dir, "design")
	if err := os.MkdirAll(design, 0o755); err != nil {
		return fmt.Errorf("failed to create design directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(design, "program_logic.v"), []byte(text+"\n"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(design, "UserParams.sv"), []byte(userParams(apps)), 0o644)
}

func userParams(apps int) string {
	var b strings.Builder
	b.WriteString("`ifndef USER_PARAMS_SV_INCLUDED\n")
	b.WriteString("`define USER_PARAMS_SV_INCLUDED\n\n")
	b.WriteString("package UserParams;\n\n")
	fmt.Fprintf(&b, "parameter NUM_APPS = %d;\n", apps)
	b.WriteString("parameter CONFIG_APPS = 4;\n\n")
	b.WriteString("endpackage\n")
	b.WriteString("`endif\n")
	return b.String()
}

func readID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: missing image id: %w", ErrBuild, err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty image id in %s", ErrBuild, filepath.Base(path))
	}
	return fields[0], nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
