package kernel

import (
	"context"

	"github.com/cellbook/cellbook/internal/cell"
)

// Descriptor identifies one execution backend and its capabilities.
type Descriptor struct {
	ID         string
	ProviderID string
	Label      string

	SupportsExecute bool
	SupportsCancel  bool
	SupportsBatch   bool

	// Preferred marks the provider's own default among its kernels.
	Preferred bool
}

// ExecuteRequest asks a kernel to run one code cell's buffer.
type ExecuteRequest struct {
	CellHandle string
	Value      string
	LanguageID string
}

// ExecuteResult carries the outputs of one execution.
type ExecuteResult struct {
	Outputs []*cell.Output
}

// Kernel is a pluggable execution backend. Execute must honor ctx
// cancellation cooperatively: check it at every suspension point and
// return without side effects once cancelled.
type Kernel interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error)
}

// BatchKernel is implemented by kernels that can run a whole notebook
// in one request.
type BatchKernel interface {
	Kernel
	ExecuteBatch(ctx context.Context, reqs []ExecuteRequest) ([]*ExecuteResult, error)
}
