package kernel

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cellbook/cellbook/internal/cell"
)

// LocalKernel executes shell-language code cells in a subprocess. It is
// the built-in backend the CLI registers when no extension provides
// one.
type LocalKernel struct {
	desc   Descriptor
	shell  string
	logger *zap.Logger
}

func NewLocalKernel(logger *zap.Logger) *LocalKernel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalKernel{
		desc: Descriptor{
			ID:              "local-shell",
			ProviderID:      "cellbook.builtin",
			Label:           "Local Shell",
			SupportsExecute: true,
			SupportsCancel:  true,
		},
		shell:  "/bin/sh",
		logger: logger.Named("kernel.local"),
	}
}

func (k *LocalKernel) Descriptor() Descriptor { return k.desc }

func (k *LocalKernel) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, k.shell, "-c", req.Value)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var items []cell.OutputItem
	if stdout.Len() > 0 {
		items = append(items, cell.OutputItem{Mime: cell.MimeStdout, Data: stdout.Bytes()})
	}
	if stderr.Len() > 0 {
		items = append(items, cell.OutputItem{Mime: cell.MimeStderr, Data: stderr.Bytes()})
	}
	if runErr != nil {
		k.logger.Debug("cell exited with error", zap.String("cell", req.CellHandle), zap.Error(runErr))
		items = append(items, cell.OutputItem{Mime: cell.MimeError, Data: []byte(runErr.Error())})
	}
	if len(items) == 0 {
		items = append(items, cell.OutputItem{Mime: cell.MimeText, Data: nil})
	}
	return &ExecuteResult{Outputs: []*cell.Output{cell.NewOutput(items...)}}, nil
}

// FuncKernel adapts a function into a kernel. Tests and embedders use
// it instead of a subprocess-backed kernel.
type FuncKernel struct {
	Desc Descriptor
	Fn   func(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error)
}

func (k *FuncKernel) Descriptor() Descriptor { return k.Desc }

func (k *FuncKernel) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if k.Fn == nil {
		return nil, errors.New("kernel has no execute function")
	}
	return k.Fn(ctx, req)
}
