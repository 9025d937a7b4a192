package inventory

import (
	"context"
	"fmt"

	"github.com/emilejacobs/rollout/internal/platform"
)

// Source yields validated host records from one inventory backend.
type Source interface {
	Name() string
	Hosts(ctx context.Context) ([]Host, error)
}

// Registry holds the configured inventory sources.
type Registry struct {
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

func (r *Registry) Register(s Source) {
	r.sources[s.Name()] = s
}

func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("inventory source not registered: %s", name)
	}
	return s, nil
}

// CSVSource reads hosts from a CSV file on each call.
type CSVSource struct {
	Path      string
	Platforms platform.Table
}

func (s *CSVSource) Name() string { return "csv" }

func (s *CSVSource) Hosts(ctx context.Context) ([]Host, error) {
	_ = ctx
	return ParseCSV(s.Path, s.Platforms)
}

// StaticSource serves hosts pinned in the YAML config. Invalid
// entries are dropped the same way invalid CSV rows are.
type StaticSource struct {
	Entries   []Host
	Platforms platform.Table
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Hosts(ctx context.Context) ([]Host, error) {
	_ = ctx
	var hosts []Host
	for _, h := range s.Entries {
		if len(h.Validate(s.Platforms)) == 0 {
			hosts = append(hosts, h)
		}
	}
	return hosts, nil
}
