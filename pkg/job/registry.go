// pkg/job/registry.go

package job

import (
	"sort"
	"sync"

	"github.com/CodeMonkeyCybersecurity/pc-switcher/pkg/config"
	cerr "github.com/cockroachdb/errors"
)

// Factory builds one job instance for a run.
type Factory func(cfg *config.Config) (Job, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Factory)
)

// Register adds a configurable job type. Called from package init of each
// job implementation; the orchestrator never hard-codes the job set.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("job: duplicate registration of " + name)
	}
	registry[name] = factory
}

// Known returns all registered job names, sorted.
func Known() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the enabled jobs in config order. Unknown names are a
// config error, caught before anything connects.
func Build(cfg *config.Config) ([]Job, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	jobs := make([]Job, 0, len(cfg.Jobs.Enabled))
	for _, name := range cfg.Jobs.Enabled {
		factory, ok := registry[name]
		if !ok {
			return nil, cerr.Newf("unknown job %q in jobs.enabled (known: %v)", name, knownLocked())
		}
		j, err := factory(cfg)
		if err != nil {
			return nil, cerr.Wrapf(err, "failed to build job %q", name)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func knownLocked() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
