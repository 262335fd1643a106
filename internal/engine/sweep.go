package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/studiowebux/benchkit/internal/fixture"
	"github.com/studiowebux/benchkit/internal/report"
	"github.com/studiowebux/benchkit/internal/workload"
	"go.uber.org/zap"
)

// AllWorkloads expands to every registered workload in RunSuite
const AllWorkloads = "all"

// Plan selects the combinations of one workload to run
type Plan struct {
	Name     string
	Selector workload.Selector
}

// Sweep runs every combination of desc matched by sel, in space order. It
// keeps going after failures and returns every error joined. Reports are
// returned for each run that produced one, including timed-out runs.
func (e *Engine) Sweep(ctx context.Context, desc workload.Descriptor, sel workload.Selector, opts Options) ([]report.Report, error) {
	space := desc.Space()
	if err := space.CheckSelector(sel); err != nil {
		return nil, fmt.Errorf("workload %s: %w", desc.Name, err)
	}

	held := e.hold(ctx, []workload.Descriptor{desc})
	defer e.release(ctx, e.logger, held)

	var reports []report.Report
	var errs []error

	for params := range space.Select(sel) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("workload %s: %w", desc.Name, err))
			break
		}

		r, err := e.RunWorkload(ctx, desc, params, opts)
		if err != nil {
			e.logger.Warn("run failed",
				zap.String("workload", desc.Name),
				zap.String("params", params.Key()),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
		if r.RunID != "" {
			reports = append(reports, r)
		}
	}

	return reports, errors.Join(errs...)
}

// RunSuite resolves names against reg and sweeps each workload. The name
// "all" expands to every registered workload. Constraints in sel apply to
// the workloads that declare the constrained axis.
func (e *Engine) RunSuite(ctx context.Context, reg *workload.Registry, names []string, sel workload.Selector, opts Options) ([]report.Report, error) {
	plans := make([]Plan, 0, len(names))
	for _, name := range expandNames(reg, names) {
		plans = append(plans, Plan{Name: name, Selector: sel})
	}
	return e.RunPlans(ctx, reg, plans, opts)
}

// RunPlans runs each plan in order. Every fixture the plans declare is
// held from the first run to the last, so it starts once for the suite.
func (e *Engine) RunPlans(ctx context.Context, reg *workload.Registry, plans []Plan, opts Options) ([]report.Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	type resolvedPlan struct {
		desc workload.Descriptor
		sel  workload.Selector
	}

	resolved := make([]resolvedPlan, 0, len(plans))
	var errs []error
	for _, p := range plans {
		desc, err := reg.Resolve(p.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		resolved = append(resolved, resolvedPlan{desc: desc, sel: p.Selector})
	}

	descs := make([]workload.Descriptor, len(resolved))
	for i, rp := range resolved {
		descs[i] = rp.desc
	}
	if err := checkSelectors(descs, plans); err != nil {
		return nil, err
	}

	held := e.hold(ctx, descs)
	defer e.release(ctx, e.logger, held)

	var reports []report.Report
	for _, rp := range resolved {
		rs, err := e.Sweep(ctx, rp.desc, rp.desc.Space().Restrict(rp.sel), opts)
		reports = append(reports, rs...)
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return reports, errors.Join(errs...)
}

func expandNames(reg *workload.Registry, names []string) []string {
	var out []string
	for _, name := range names {
		if name == AllWorkloads {
			out = append(out, reg.Names()...)
			continue
		}
		out = append(out, name)
	}
	return out
}

// checkSelectors rejects constraints on an axis that none of the planned
// workloads declares, which is almost certainly a typo.
func checkSelectors(descs []workload.Descriptor, plans []Plan) error {
	declared := make(map[string]bool)
	for _, d := range descs {
		for _, axis := range d.Axes {
			declared[axis.Name] = true
		}
	}

	for _, p := range plans {
		for _, name := range p.Selector.Names() {
			if !declared[name] {
				return fmt.Errorf("unknown parameter %q: no selected workload declares it", name)
			}
		}
	}
	return nil
}

// hold acquires each fixture declared by descs once, in declaration order.
// A fixture that fails to start is skipped here; the runs that need it
// retry the start and report the *fixture.StartError themselves.
func (e *Engine) hold(ctx context.Context, descs []workload.Descriptor) []*fixture.Handle {
	if e.fixtures == nil {
		return nil
	}

	seen := make(map[string]bool)
	var handles []*fixture.Handle
	for _, d := range descs {
		for _, name := range d.Fixtures {
			if seen[name] {
				continue
			}
			seen[name] = true

			h, err := e.fixtures.Acquire(ctx, name)
			if err != nil {
				e.logger.Warn("fixture unavailable", zap.String("fixture", name), zap.Error(err))
				continue
			}
			handles = append(handles, h)
		}
	}
	return handles
}
