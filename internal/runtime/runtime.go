// Package runtime reports the interpreter version used for new notebook
// metadata.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnavailable is returned when no interpreter can be found.
var ErrUnavailable = errors.New("runtime: interpreter unavailable")

// Version is an interpreter version.
type Version struct {
	Raw   string `json:"raw"`
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Patch int    `json:"patch"`
}

// Provider reports the active interpreter.
type Provider interface {
	ActiveVersion(ctx context.Context) (*Version, error)
}

var versionRe = regexp.MustCompile(`(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// ParseVersion extracts the first dotted version number from s, e.g. from
// "Python 3.11.4".
func ParseVersion(s string) (*Version, error) {
	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("runtime: no version in %q", strings.TrimSpace(s))
	}
	v := &Version{Raw: strings.TrimSpace(m[0])}
	v.Major, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		v.Minor, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	return v, nil
}

// Static reports a fixed version. An empty version reports ErrUnavailable.
type Static string

func (s Static) ActiveVersion(context.Context) (*Version, error) {
	if s == "" {
		return nil, ErrUnavailable
	}
	return ParseVersion(string(s))
}

// Command probes an interpreter binary with --version. The first successful
// result is cached.
type Command struct {
	Binary  string
	Timeout time.Duration

	mu     sync.Mutex
	cached *Version
}

// NewCommand returns a probe for binary.
func NewCommand(binary string) *Command {
	return &Command{Binary: binary, Timeout: 5 * time.Second}
}

func (c *Command) ActiveVersion(ctx context.Context) (*Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil {
		v := *c.cached
		return &v, nil
	}
	if c.Binary == "" {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, c.Binary, "--version").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.Binary, err)
	}
	v, err := ParseVersion(string(out))
	if err != nil {
		return nil, err
	}
	c.cached = v
	out2 := *v
	return &out2, nil
}

// Chain returns the first version any provider reports.
type Chain []Provider

func (c Chain) ActiveVersion(ctx context.Context) (*Version, error) {
	errs := make([]error, 0, len(c))
	for _, p := range c {
		v, err := p.ActiveVersion(ctx)
		if err == nil {
			return v, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrUnavailable
	}
	return nil, errors.Join(errs...)
}
