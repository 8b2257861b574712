package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/slotjit/internal/compiler"
	"github.com/specialistvlad/slotjit/internal/toolchain"
)

// Build backends.
const (
	BackendSim    = "sim"
	BackendScript = "script"
	BackendRemote = "remote"
)

// DefaultTarget is the target name the slot scheduler is registered under.
const DefaultTarget = "sim"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ProgramPath string // hcl file or directory

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int

	Slots int
	// Target is the name programs select the slot scheduler by.
	Target      string
	Backend     string
	BuildServer string        // remote backend
	BuildDelay  time.Duration // sim backend
	BuildScript string        // script backend
	BuildDir    string        // script backend scratch directory
	CacheDir    string

	// Serve runs a build server on the healthcheck port.
	Serve bool

	SavePath    string
	RestartPath string
	// MarchPath names a target description the program is retargeted to
	// once it has compiled.
	MarchPath string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ProgramPath == "" && !cfg.Serve {
		return nil, errors.New("ProgramPath is a required configuration field unless serving builds")
	}
	if cfg.Serve && cfg.HealthcheckPort <= 0 {
		return nil, errors.New("serving builds requires a healthcheck port")
	}
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}
	if cfg.Target == compiler.TargetSoftware || cfg.Target == compiler.TargetStub {
		return nil, fmt.Errorf("target %q is reserved", cfg.Target)
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.Slots < 1 || cfg.Slots > toolchain.MaxApps {
		return nil, fmt.Errorf("slots must be between 1 and %d, got %d", toolchain.MaxApps, cfg.Slots)
	}

	switch cfg.Backend {
	case BackendSim:
	case BackendScript:
		if cfg.BuildScript == "" {
			return nil, errors.New("the script backend requires a build script")
		}
	case BackendRemote:
		if cfg.BuildServer == "" {
			return nil, errors.New("the remote backend requires a build server URL")
		}
		if cfg.Serve {
			return nil, errors.New("a build server cannot use the remote backend")
		}
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if cfg.RestartPath != "" && cfg.ProgramPath == "" {
		return nil, errors.New("restart requires a program")
	}
	if cfg.MarchPath != "" && cfg.ProgramPath == "" {
		return nil, errors.New("retargeting requires a program")
	}

	return &cfg, nil
}
