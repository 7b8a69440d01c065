package pyenv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"knlsetup/internal/runner"
)

// DefaultProbeTimeout bounds a single version query.
const DefaultProbeTimeout = 3 * time.Second

var (
	ErrProbeTimeout     = errors.New("version query timed out")
	ErrProbeFailed      = errors.New("version query failed")
	ErrNotPython        = errors.New("not a Python interpreter")
	ErrMalformedVersion = errors.New("malformed version output")
)

// ProbeError describes why a single candidate failed its probe.
type ProbeError struct {
	Path   string
	Err    error
	Detail string
}

func (e *ProbeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Path, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Probe runs "<path> --version" once, bounded by timeout, and parses the
// reported interpreter identity and version. It has no side effects beyond the
// single subprocess. Cancellation of ctx itself is returned unwrapped so
// callers can stop searching.
func Probe(ctx context.Context, r runner.Runner, path string, timeout time.Duration) (Candidate, error) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := r.Run(probeCtx, path, []string{"--version"}, runner.Options{})
	if err != nil {
		if ctx.Err() != nil {
			return Candidate{}, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || probeCtx.Err() != nil {
			return Candidate{}, &ProbeError{Path: path, Err: ErrProbeTimeout}
		}
		return Candidate{}, &ProbeError{Path: path, Err: ErrProbeFailed, Detail: err.Error()}
	}

	// Python 2 reports its version on stderr.
	output := strings.TrimSpace(string(res.Stdout))
	if output == "" {
		output = strings.TrimSpace(string(res.Stderr))
	}

	identity := identityOf(output)
	if identity == "" {
		return Candidate{}, &ProbeError{Path: path, Err: ErrNotPython, Detail: quoteLine(output)}
	}

	fields := strings.Fields(firstLine(output))
	if len(fields) < 2 {
		return Candidate{}, &ProbeError{Path: path, Err: ErrMalformedVersion, Detail: quoteLine(output)}
	}
	version, err := ParseVersion(fields[1])
	if err != nil {
		return Candidate{}, &ProbeError{Path: path, Err: ErrMalformedVersion, Detail: quoteLine(output)}
	}

	return Candidate{Path: path, Version: version, Identity: identity}, nil
}

func identityOf(output string) string {
	fields := strings.Fields(firstLine(output))
	if len(fields) == 0 || !strings.EqualFold(fields[0], "Python") {
		return ""
	}
	if strings.Contains(output, "PyPy") {
		return "PyPy"
	}
	return "CPython"
}

func quoteLine(output string) string {
	line := firstLine(output)
	if len(line) > 60 {
		line = line[:60] + "…"
	}
	return fmt.Sprintf("%q", line)
}
