// pkg/diskwatch/sample.go

package diskwatch

import (
	"context"
	"strconv"
	"strings"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/pcs_err"
	cerr "github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v4/disk"
)

// Sample is one observation of a filesystem's free space.
type Sample struct {
	Path  string
	Free  uint64
	Total uint64
}

// FreePercent is the free share of the filesystem, 0-100.
func (s Sample) FreePercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Free) / float64(s.Total) * 100.0
}

// Sampler observes free space on one host.
type Sampler interface {
	Sample(ctx context.Context, path string) (*Sample, error)
}

// LocalSampler reads the local filesystem directly.
type LocalSampler struct{}

func (LocalSampler) Sample(_ context.Context, path string) (*Sample, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return nil, cerr.Wrapf(err, "failed to stat filesystem at %s", path)
	}
	return &Sample{Path: path, Free: usage.Free, Total: usage.Total}, nil
}

// RemoteSampler shells out to df on the target through the executor.
type RemoteSampler struct {
	Exec execute.Executor
}

func (r RemoteSampler) Sample(ctx context.Context, path string) (*Sample, error) {
	res, err := r.Exec.Run(ctx, execute.Options{
		Command: "df",
		Args:    []string{"-B1", "--output=avail,size", path},
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, cerr.Newf("df failed on %s for %s: %s",
			r.Exec.Hostname(), path, pcs_err.ExtractSummary(res.Stderr, 2))
	}
	return parseDF(res.Stdout, path)
}

func parseDF(output, path string) (*Sample, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		return nil, cerr.Newf("unexpected df output for %s: %q", path, output)
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 2 {
		return nil, cerr.Newf("unexpected df output for %s: %q", path, output)
	}
	free, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return nil, cerr.Wrapf(err, "unexpected df avail field %q", fields[0])
	}
	total, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return nil, cerr.Wrapf(err, "unexpected df size field %q", fields[1])
	}
	return &Sample{Path: path, Free: free, Total: total}, nil
}
