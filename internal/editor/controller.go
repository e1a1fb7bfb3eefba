package editor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cellbook/cellbook/internal/cell"
	"github.com/cellbook/cellbook/internal/document"
	"github.com/cellbook/cellbook/internal/kernel"
	"github.com/cellbook/cellbook/internal/listview"
	"github.com/cellbook/cellbook/internal/surface"
	"github.com/cellbook/cellbook/internal/viewmodel"
)

// renderOffset separates a cell's editor part from its output overlay.
const renderOffset = 8

// Services are the application-scoped collaborators handed to every
// controller at construction. There are no module-level singletons;
// the host shell owns one Services value for its lifetime.
type Services struct {
	Kernels *kernel.Registry
	Prefs   kernel.PreferenceStore
	Rules   []kernel.AffinityRule

	// RendererMimes lists the output representations the surface's
	// renderer bundles can display, in preference order.
	RendererMimes []string

	ListOptions    listview.Options
	SurfaceOptions surface.Options
	Logger         *zap.Logger
}

// Controller owns one document lifecycle: it wires the view model, the
// virtualized list, the output surface and the kernel selector, and
// exposes the public editing and execution operations.
type Controller struct {
	services Services
	logger   *zap.Logger

	mu       sync.Mutex
	attached bool

	doc      *document.Document
	vm       *viewmodel.ViewModel
	list     *listview.List
	surface  *surface.Surface
	selector *kernel.Selector
	runner   *kernel.Runner

	cancels []func()

	attachSubs []func(*document.Document)
}

func NewController(services Services) *Controller {
	logger := services.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(services.RendererMimes) == 0 {
		services.RendererMimes = []string{cell.MimeStdout, cell.MimeStderr, cell.MimeError, cell.MimeText}
	}
	return &Controller{
		services: services,
		logger:   logger.Named("editor"),
	}
}

// OnDocumentAttached subscribes to attach events.
func (c *Controller) OnDocumentAttached(fn func(*document.Document)) {
	c.attachSubs = append(c.attachSubs, fn)
}

// Attach binds the controller to a document, constructing the view
// model, list, output surface and kernel selector. docType drives
// kernel affinity; nativeProvider is the provider the document itself
// declares, if any.
func (c *Controller) Attach(ctx context.Context, doc *document.Document, docType, nativeProvider string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		return errors.New("controller already attached to a document")
	}

	c.doc = doc
	c.vm = viewmodel.New(doc, c.logger)
	c.list = listview.New(c.vm, c.services.ListOptions, c.logger)
	c.surface = surface.New(c.services.SurfaceOptions)
	c.selector = kernel.NewSelector(c.services.Kernels, c.services.Prefs, c.services.Rules, docType, nativeProvider, c.logger)
	c.runner = kernel.NewRunner(c.vm, c.selector, c.logger)
	c.attached = true

	c.wire(ctx)
	c.selector.Kick(ctx)

	for _, fn := range c.attachSubs {
		fn(doc)
	}
	c.logger.Info("document attached", zap.String("doc", doc.ID()), zap.Int("cells", doc.Len()))
	return nil
}

// wire connects list scrolling and output-affecting model changes to
// the surface.
func (c *Controller) wire(ctx context.Context) {
	c.cancels = append(c.cancels, c.list.OnScroll(func(ev listview.ScrollEvent) {
		c.surface.UpdateScroll(ctx, ev.Delta, c.list.VisibleOutputTops())
	}))

	c.cancels = append(c.cancels, c.vm.Events().OnOutputs(func(ev viewmodel.OutputsEvent) {
		c.syncCellInsets(ctx, ev.Index)
	}))

	c.cancels = append(c.cancels, c.vm.Events().OnSplice(func(ev viewmodel.SpliceEvent) {
		removed := map[string]*cell.Cell{}
		for _, s := range ev.Splices {
			for _, d := range s.Deleted {
				removed[d.Handle()] = d
			}
		}
		for _, s := range ev.Splices {
			for _, ins := range s.Inserted {
				delete(removed, ins.Handle())
			}
		}
		// Cells that left the document take their rendered outputs
		// with them.
		for _, d := range removed {
			for _, out := range d.Outputs {
				c.surface.RemoveInset(ctx, out.ID)
			}
		}
		// The edit shifted the offsets of every cell below it; push the
		// fresh positions so surviving insets do not sit at stale tops.
		c.surface.UpdateScroll(ctx, 0, c.list.VisibleOutputTops())
	}))
}

// syncCellInsets creates or repositions an inset for every output of
// the cell at index. Existing insets degrade to position updates inside
// the surface, so widget state survives.
func (c *Controller) syncCellInsets(ctx context.Context, index int) {
	cl := c.doc.CellAt(index)
	if cl == nil {
		return
	}
	top := c.list.OffsetAt(index)
	for _, out := range cl.Outputs {
		item := out.PickItem(c.services.RendererMimes)
		if item == nil {
			continue
		}
		c.surface.CreateInset(ctx, cl.Handle(), out.ID, top, renderOffset, item.Data, cell.ItemMime(*item), c.services.RendererMimes)
	}
}

// Detach tears the editing session down: subscriptions drop, the
// surface disposes, the selector cancels in-flight work, and all cell
// buffers and outputs release.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return
	}
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
	c.list.Detach()
	c.surface.Dispose()
	c.selector.Detach()
	c.doc.Release()
	c.attached = false
	c.logger.Info("document detached", zap.String("doc", c.doc.ID()))
}

func (c *Controller) Document() *document.Document { return c.doc }

func (c *Controller) ViewModel() *viewmodel.ViewModel { return c.vm }

func (c *Controller) List() *listview.List { return c.list }

func (c *Controller) Surface() *surface.Surface { return c.surface }

func (c *Controller) Selector() *kernel.Selector { return c.selector }

// InsertCell inserts a new cell at index. Returns (nil, nil) when the
// document rejects the edit by policy.
func (c *Controller) InsertCell(index int, value, languageID string, kind cell.Kind) (*cell.Cell, error) {
	return c.vm.CreateCell(index, value, languageID, kind, nil, nil)
}

func (c *Controller) DeleteCell(index int) error {
	return c.vm.DeleteCell(index)
}

func (c *Controller) MoveCell(from, to int) error {
	return c.vm.MoveCell(from, to)
}

func (c *Controller) SplitCell(index int, offsets []int) ([]*cell.Cell, error) {
	return c.vm.SplitCell(index, offsets)
}

func (c *Controller) JoinCells(index int, direction viewmodel.JoinDirection, kindConstraint ...cell.Kind) (*cell.Cell, error) {
	return c.vm.JoinCells(index, direction, kindConstraint...)
}

func (c *Controller) Undo() error { return c.vm.Undo() }

func (c *Controller) Redo() error { return c.vm.Redo() }

// Focus and reveal pass through to the list.

func (c *Controller) SelectElement(index int) { c.list.SelectElement(index) }

func (c *Controller) SetCellSelection(index int) { c.list.SetCellSelection(index) }

func (c *Controller) RevealInView(index int) { c.list.RevealInView(index) }

func (c *Controller) RevealInCenter(index int) { c.list.RevealInCenter(index) }

func (c *Controller) RevealInCenterIfOutsideViewport(index int) {
	c.list.RevealInCenterIfOutsideViewport(index)
}

// Execution passes through to the runner.

func (c *Controller) ExecuteCell(ctx context.Context, index int) error {
	return c.runner.ExecuteCell(ctx, index)
}

func (c *Controller) CancelCellExecution(index int) { c.runner.CancelCellExecution(index) }

func (c *Controller) ExecuteNotebook(ctx context.Context) error {
	return c.runner.ExecuteNotebook(ctx)
}

func (c *Controller) CancelNotebookExecution() { c.runner.CancelNotebookExecution() }
