package topology

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	activeMarker = "*"
	coreToken    = "Core"

	defaultToolTimeout = 10 * time.Second
)

// Source supplies the raw output of the core topology tool.
type Source interface {
	CoreMap(ctx context.Context) (io.Reader, error)
}

// CommandSource runs an external tool, by default "ppc64_cpu --info".
type CommandSource struct {
	Path    string
	Args    []string
	Timeout time.Duration
}

// DefaultCommand returns the ppc64_cpu invocation used on Power systems.
func DefaultCommand() CommandSource {
	return CommandSource{
		Path:    "ppc64_cpu",
		Args:    []string{"--info"},
		Timeout: defaultToolTimeout,
	}
}

func (s CommandSource) CoreMap(ctx context.Context) (io.Reader, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.Path, s.Args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", s.Path, ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", s.Path, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}

	return &stdout, nil
}

// StaticSource returns canned tool output.
type StaticSource string

func (s StaticSource) CoreMap(context.Context) (io.Reader, error) {
	return strings.NewReader(string(s)), nil
}

// FileSource reads previously captured tool output from a file.
type FileSource string

func (s FileSource) CoreMap(context.Context) (io.Reader, error) {
	data, err := os.ReadFile(string(s))
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// ParseCoreMap extracts the active cores from "ppc64_cpu --info" output:
//
//	Core   0:    0*    1*    2*    3*
//	Core   1:    4     5     6     7
//
// A line is active when it carries at least one marker. Members are listed
// with the markers stripped, so offline threads on an active core stay in
// the list. Anything after a quote is an annotation and is dropped.
func ParseCoreMap(r io.Reader) ([]Core, error) {
	var cores []Core
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, activeMarker) {
			continue
		}
		line = strings.ReplaceAll(line, activeMarker, "")
		if !strings.Contains(line, coreToken) {
			continue
		}

		threads, err := parseCoreLine(line)
		if err != nil {
			return nil, err
		}
		cores = append(cores, Core{ID: len(cores), Threads: threads})
	}

	return cores, scanner.Err()
}

func parseCoreLine(line string) ([]ThreadID, error) {
	_, list, ok := strings.Cut(line, ":")
	if !ok {
		return nil, fmt.Errorf("missing ':' in core line %q", line)
	}
	list, _, _ = strings.Cut(list, "'")

	fields := strings.Fields(list)
	threads := make([]ThreadID, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid thread id %q in core line %q", f, line)
		}
		threads = append(threads, ThreadID(n))
	}
	return threads, nil
}
