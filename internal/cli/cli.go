package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/slotjit/internal/app"
	"github.com/specialistvlad/slotjit/internal/slots"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("slotjit", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
slotjit - Compile a program to software first and move its modules into
hardware slots as the device images become available.

Usage:
  slotjit [options] [PROGRAM_PATH]
  slotjit -serve -healthcheck-port PORT [options]

Arguments:
  PROGRAM_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	programFlag := flagSet.String("program", "", "Path to the program file or directory.")
	pFlag := flagSet.String("p", "", "Path to the program file or directory (shorthand).")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the health, metrics and build server endpoints. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 4, "Number of workers running background compile passes.")
	slotsFlag := flagSet.Int("slots", slots.DefaultSize, "Number of hardware slots.")
	targetFlag := flagSet.String("target", app.DefaultTarget, "Target name programs use to select the hardware slots.")
	backendFlag := flagSet.String("backend", app.BackendSim, "Build backend. Options: 'sim', 'script' or 'remote'.")
	buildServerFlag := flagSet.String("build-server", "", "URL of the build server for the remote backend.")
	buildDelayFlag := flagSet.Duration("build-delay", 0, "Simulated build time for the sim backend.")
	buildScriptFlag := flagSet.String("build-script", "", "Build script for the script backend. Its directory is copied into the build directory.")
	buildDirFlag := flagSet.String("build-dir", "", "Scratch directory for the script backend. It is wiped before every build.")
	cacheDirFlag := flagSet.String("cache-dir", "", "Directory of the build cache. Empty disables caching.")
	serveFlag := flagSet.Bool("serve", false, "Serve builds to remote schedulers on the healthcheck port.")
	saveFlag := flagSet.String("save", "", "Write engine state to this file once the program has compiled.")
	restartFlag := flagSet.String("restart", "", "Load engine state from this file once the program has compiled.")
	marchFlag := flagSet.String("march", "", "Retarget the compiled program to the target description in this file.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *programFlag != "" {
		path = *programFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Program path determined.", "path", path)

	if path == "" && !*serveFlag {
		slog.Debug("No program path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ProgramPath:     path,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		WorkerCount:     *workersFlag,
		Slots:           *slotsFlag,
		Target:          *targetFlag,
		Backend:         strings.ToLower(*backendFlag),
		BuildServer:     *buildServerFlag,
		BuildDelay:      *buildDelayFlag,
		BuildScript:     *buildScriptFlag,
		BuildDir:        *buildDirFlag,
		CacheDir:        *cacheDirFlag,
		Serve:           *serveFlag,
		SavePath:        *saveFlag,
		RestartPath:     *restartFlag,
		MarchPath:       *marchFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
