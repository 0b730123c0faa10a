package reconcile

import (
	"context"
	"fmt"

	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/provenance/domain"
)

// Problem is one graph invariant the committed store breaks.
type Problem struct {
	Kind   string `json:"kind"`
	Entity string `json:"entity"`
	ID     int64  `json:"id"`
	Detail string `json:"detail"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s %d: %s: %s", p.Entity, p.ID, p.Kind, p.Detail)
}

// Verify rechecks the invariants of the whole committed graph. An empty
// result means the store is consistent.
func Verify(ctx context.Context, reader domain.Reader, reg *catalog.Registry) ([]Problem, error) {
	artifacts, err := reader.ListArtifacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	jobs, err := reader.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	byID := make(map[int64]*domain.Artifact, len(artifacts))
	for _, a := range artifacts {
		byID[a.ID()] = a
	}
	jobByID := make(map[int64]*domain.ProcessingJob, len(jobs))
	for _, j := range jobs {
		jobByID[j.ID()] = j
	}

	var problems []Problem
	add := func(kind error, entity string, id int64, format string, args ...any) {
		problems = append(problems, Problem{Kind: kind.Error(), Entity: entity, ID: id, Detail: fmt.Sprintf(format, args...)})
	}

	for _, j := range jobs {
		if j.Status() == domain.JobError && !j.HasLog() {
			add(domain.ErrMissingLogRef, "job", j.ID(), "status error without log")
		}
		cmd, err := reg.LookupCommandByID(j.CommandID())
		if err != nil {
			add(domain.ErrInvalidBinding, "job", j.ID(), "command %d is not in the catalog", j.CommandID())
			continue
		}
		if err := cmd.Validate(j.Binding()); err != nil {
			add(domain.ErrInvalidBinding, "job", j.ID(), "%v", err)
		}
		for _, name := range j.Binding().Names() {
			id, ok := j.Binding()[name].ArtifactID()
			if !ok {
				continue
			}
			in, found := byID[id]
			if !found {
				add(domain.ErrUnknownArtifactRef, "job", j.ID(), "%s references artifact %d", name, id)
				continue
			}
			if p, ok := cmd.Parameter(name); ok && !p.Type().AcceptsArtifactType(in.Type()) {
				add(domain.ErrTypeMismatch, "job", j.ID(), "%s is a %s", name, in.Type())
			}
		}
	}

	for _, a := range artifacts {
		if a.IsRoot() {
			if len(a.Parents()) > 0 {
				add(domain.ErrRootWithParents, "artifact", a.ID(), "parents %v", a.Parents())
			}
			continue
		}
		job, ok := jobByID[a.ProducingJobID()]
		if !ok {
			add(domain.ErrUnknownOutputSlot, "artifact", a.ID(), "producing job %d does not exist", a.ProducingJobID())
			continue
		}
		if job.Status() == domain.JobError {
			add(domain.ErrFailedJobOutput, "artifact", a.ID(), "produced by failed job %d", job.ID())
		}
		cmd, err := reg.LookupCommandByID(job.CommandID())
		if err != nil {
			continue
		}
		out, ok := cmd.Output(a.OutputSlot())
		switch {
		case !ok:
			add(domain.ErrUnknownOutputSlot, "artifact", a.ID(), "%s has no output %q", cmd.Name(), a.OutputSlot())
		case out.ArtifactType() != a.Type():
			add(domain.ErrTypeMismatch, "artifact", a.ID(), "slot %q yields %s, artifact is %s", out.Name(), out.ArtifactType(), a.Type())
		}
	}

	for _, id := range findCycles(artifacts) {
		add(domain.ErrCycleDetected, "artifact", id, "reachable from itself through parent edges")
	}
	return problems, nil
}

// findCycles returns one artifact on every parent cycle.
func findCycles(artifacts []*domain.Artifact) []int64 {
	const (
		white = iota
		grey
		black
	)
	parents := make(map[int64][]int64, len(artifacts))
	for _, a := range artifacts {
		parents[a.ID()] = a.Parents()
	}
	color := make(map[int64]int, len(artifacts))
	var cycles []int64

	var visit func(id int64)
	visit = func(id int64) {
		color[id] = grey
		for _, p := range parents[id] {
			switch color[p] {
			case grey:
				cycles = append(cycles, p)
			case white:
				visit(p)
			}
		}
		color[id] = black
	}
	for _, a := range artifacts {
		if color[a.ID()] == white {
			visit(a.ID())
		}
	}
	return cycles
}
