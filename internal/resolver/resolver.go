package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/iolloyd/netwatch/internal/hosting"
	"github.com/iolloyd/netwatch/internal/models"
	"github.com/iolloyd/netwatch/internal/procs"
)

var digitsRe = regexp.MustCompile(`^\d+$`)

// Resolution is the outcome of resolving a descriptor
type Resolution struct {
	PID   int
	Kind  models.HostingKind
	Found bool
}

// Resolver turns a target descriptor into the pid currently behind it
type Resolver struct {
	table    procs.Table
	registry hosting.Registry
	diag     func(models.Diagnostic)
}

// New creates a resolver. diag receives ambiguous-name warnings; it may be nil.
func New(table procs.Table, registry hosting.Registry, diag func(models.Diagnostic)) *Resolver {
	if registry == nil {
		registry = hosting.None{}
	}
	if diag == nil {
		diag = func(models.Diagnostic) {}
	}
	return &Resolver{
		table:    table,
		registry: registry,
		diag:     diag,
	}
}

// Resolve finds the pid for descriptor. A purely numeric descriptor is a
// literal pid and is only checked for existence. Otherwise hint decides
// between the hosting-slot registry, the process table, or the process table
// with a registry fallback. Not finding anything is not an error.
func (r *Resolver) Resolve(ctx context.Context, descriptor string, hint models.HostingKind) (Resolution, error) {
	if digitsRe.MatchString(descriptor) {
		return r.resolvePID(ctx, descriptor, hint)
	}

	switch hint {
	case models.HostingSlot:
		return r.resolveSlot(ctx, descriptor)
	case models.HostingDirect:
		return r.resolveProcess(ctx, descriptor)
	default:
		res, err := r.resolveProcess(ctx, descriptor)
		if err != nil || res.Found {
			return res, err
		}
		res, err = r.resolveSlot(ctx, descriptor)
		if err == nil && res.Found {
			r.diag(models.ResolvedBySlot(descriptor, res.PID))
		}
		return res, err
	}
}

// Invalidate drops anything the hosting-slot registry has cached, so the next
// slot lookup sees the current worker processes
func (r *Resolver) Invalidate() {
	if inv, ok := r.registry.(hosting.Invalidator); ok {
		inv.Invalidate()
	}
}

// resolvePID keeps a definite hint so a pid given for a slot still reads as one
func (r *Resolver) resolvePID(ctx context.Context, descriptor string, hint models.HostingKind) (Resolution, error) {
	res := Resolution{Kind: hint}
	if hint == models.HostingUnknown {
		res.Kind = models.HostingDirect
	}
	pid, err := strconv.Atoi(descriptor)
	if err != nil {
		// too large to be a pid
		return res, nil
	}
	ok, err := r.table.Exists(ctx, pid)
	if err != nil {
		return res, fmt.Errorf("failed to check pid %d: %w", pid, err)
	}
	if ok {
		res.PID = pid
		res.Found = true
	}
	return res, nil
}

func (r *Resolver) resolveProcess(ctx context.Context, name string) (Resolution, error) {
	res := Resolution{Kind: models.HostingDirect}
	found, err := r.table.FindByName(ctx, name)
	if err != nil {
		return res, fmt.Errorf("failed to look up process %q: %w", name, err)
	}
	if len(found) == 0 {
		return res, nil
	}

	if len(found) > 1 {
		pids := make([]int, len(found))
		for i, p := range found {
			pids[i] = p.PID
		}
		r.diag(models.AmbiguousName(name, pids))
	}

	res.PID = found[0].PID
	res.Found = true
	return res, nil
}

func (r *Resolver) resolveSlot(ctx context.Context, slot string) (Resolution, error) {
	res := Resolution{Kind: models.HostingSlot}
	pid, ok, err := r.registry.FindPID(ctx, slot)
	if err != nil {
		return res, fmt.Errorf("failed to look up hosting slot %q: %w", slot, err)
	}
	if ok {
		res.PID = pid
		res.Found = true
	}
	return res, nil
}
