package kernel

import (
	"context"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cellbook/cellbook/internal/cell"
	"github.com/cellbook/cellbook/internal/viewmodel"
)

// Runner dispatches cell execution against the selector's resolved
// kernel. Kernel failures are normal operation: they land in the cell's
// outputs and the run state returns to idle, nothing propagates across
// the dispatch boundary.
type Runner struct {
	vm       *viewmodel.ViewModel
	selector *Selector
	logger   *zap.Logger

	mu       sync.Mutex
	running  map[string]context.CancelFunc
	notebook context.CancelFunc
}

func NewRunner(vm *viewmodel.ViewModel, selector *Selector, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		vm:       vm,
		selector: selector,
		logger:   logger.Named("runner"),
		running:  map[string]context.CancelFunc{},
	}
}

// ExecuteCell runs the code cell at index to completion. It is a silent
// no-op when the cell is not a code cell, the effective runnable
// metadata forbids execution, no kernel is resolved, or the cell is
// already running.
func (r *Runner) ExecuteCell(ctx context.Context, index int) error {
	_, err := r.executeCell(ctx, index)
	return err
}

// executeCell additionally reports whether the execution was cancelled,
// either through the cell's own token or the parent context. Notebook
// runs stop at the first cancelled cell.
func (r *Runner) executeCell(ctx context.Context, index int) (cancelled bool, err error) {
	doc := r.vm.Document()
	c := doc.CellAt(index)
	if c == nil || c.Kind() != cell.CodeKind {
		return false, nil
	}
	if !doc.Runnable(c) {
		return false, nil
	}
	if c.RunState == cell.RunStateRunning {
		return false, nil
	}
	k := r.selector.ResolvedKernel()
	if k == nil {
		r.logger.Debug("execute with no resolved kernel", zap.String("cell", c.Handle()))
		return false, nil
	}

	cctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.running[c.Handle()] = cancel
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.running, c.Handle())
		r.mu.Unlock()
	}()

	if err := r.vm.SetRunState(index, cell.RunStateRunning); err != nil {
		return false, err
	}

	result, execErr := k.Execute(cctx, ExecuteRequest{
		CellHandle: c.Handle(),
		Value:      c.Value,
		LanguageID: c.LanguageID,
	})
	cancelled = cctx.Err() != nil

	// The cell may have moved while it was running.
	idx := doc.IndexOfHandle(c.Handle())
	if idx < 0 {
		return cancelled, nil
	}

	var outputs []*cell.Output
	switch {
	case execErr != nil:
		outputs = []*cell.Output{cell.NewOutput(cell.OutputItem{
			Mime: cell.MimeError,
			Data: []byte(execErr.Error()),
		})}
	case result != nil:
		outputs = result.Outputs
	}
	if uerr := r.vm.ReplaceCellOutputs(idx, outputs); uerr != nil {
		return cancelled, uerr
	}
	return cancelled, r.vm.SetRunState(idx, cell.RunStateIdle)
}

// CancelCellExecution signals the cell's cancellation token. It is a
// no-op unless the cell is running; the final state transition stays
// with the completion path, cancellation is cooperative.
func (r *Runner) CancelCellExecution(index int) {
	c := r.vm.Document().CellAt(index)
	if c == nil || c.RunState != cell.RunStateRunning {
		return
	}
	r.mu.Lock()
	cancel := r.running[c.Handle()]
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ExecuteNotebook runs every code cell in document order. A kernel
// advertising batch support gets the whole notebook in one request;
// otherwise cells run one by one, stopping at the first cancellation.
func (r *Runner) ExecuteNotebook(ctx context.Context) error {
	k := r.selector.ResolvedKernel()
	if k == nil {
		return nil
	}

	nctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.notebook = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.notebook = nil
		r.mu.Unlock()
	}()

	if batch, ok := k.(BatchKernel); ok && k.Descriptor().SupportsBatch {
		return r.executeBatch(nctx, batch)
	}

	var errs error
	for i := 0; i < r.vm.Document().Len(); i++ {
		if nctx.Err() != nil {
			break
		}
		c := r.vm.Document().CellAt(i)
		if c == nil || c.Kind() != cell.CodeKind {
			continue
		}
		cancelled, err := r.executeCell(nctx, i)
		errs = multierr.Append(errs, err)
		if cancelled {
			break
		}
	}
	return errs
}

func (r *Runner) executeBatch(ctx context.Context, k BatchKernel) error {
	doc := r.vm.Document()
	var reqs []ExecuteRequest
	var indexes []int
	for i := 0; i < doc.Len(); i++ {
		c := doc.CellAt(i)
		if c == nil || c.Kind() != cell.CodeKind || !doc.Runnable(c) {
			continue
		}
		reqs = append(reqs, ExecuteRequest{CellHandle: c.Handle(), Value: c.Value, LanguageID: c.LanguageID})
		indexes = append(indexes, i)
	}
	if len(reqs) == 0 {
		return nil
	}

	for _, idx := range indexes {
		if err := r.vm.SetRunState(idx, cell.RunStateRunning); err != nil {
			return err
		}
	}

	results, err := k.ExecuteBatch(ctx, reqs)

	var errs error
	for i, req := range reqs {
		idx := doc.IndexOfHandle(req.CellHandle)
		if idx < 0 {
			continue
		}
		var outputs []*cell.Output
		switch {
		case err != nil:
			outputs = []*cell.Output{cell.NewOutput(cell.OutputItem{
				Mime: cell.MimeError,
				Data: []byte(err.Error()),
			})}
		case i < len(results) && results[i] != nil:
			outputs = results[i].Outputs
		}
		errs = multierr.Append(errs, r.vm.ReplaceCellOutputs(idx, outputs))
		errs = multierr.Append(errs, r.vm.SetRunState(idx, cell.RunStateIdle))
	}
	return errs
}

// CancelNotebookExecution cancels a running notebook execution plus
// every in-flight cell.
func (r *Runner) CancelNotebookExecution() {
	r.mu.Lock()
	notebook := r.notebook
	cancels := make([]context.CancelFunc, 0, len(r.running))
	for _, c := range r.running {
		cancels = append(cancels, c)
	}
	r.mu.Unlock()

	if notebook != nil {
		notebook()
	}
	for _, cancel := range cancels {
		cancel()
	}
}
