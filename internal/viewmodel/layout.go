package viewmodel

// Layout is the derived per-cell layout state: an estimated height
// available immediately and an authoritative measured height once the
// rendered content reports one. It is a cache, never persisted, and is
// invalidated whenever the cell's content or metadata changes.
type Layout struct {
	EstimatedHeight int
	MeasuredHeight  int
	HasMeasured     bool
	EditorHeight    int
	OutputHeight    int
}

// Height returns the authoritative height when measured, else the
// estimate.
func (l *Layout) Height() int {
	if l.HasMeasured {
		return l.MeasuredHeight
	}
	return l.EstimatedHeight
}

// Layout returns the layout record for a cell handle, creating one with
// the given estimate on first access.
func (vm *ViewModel) Layout(handle string, defaultEstimate int) *Layout {
	if l, ok := vm.layout[handle]; ok {
		return l
	}
	l := &Layout{EstimatedHeight: defaultEstimate}
	vm.layout[handle] = l
	return l
}

// SetMeasuredHeight records an authoritative height. It returns the
// delta against the previously effective height so the list can shift
// trailing offsets.
func (vm *ViewModel) SetMeasuredHeight(handle string, height, defaultEstimate int) int {
	l := vm.Layout(handle, defaultEstimate)
	prev := l.Height()
	l.MeasuredHeight = height
	l.HasMeasured = true
	return height - prev
}

// InvalidateLayout discards the measured height, falling back to the
// estimate until the cell is measured again.
func (vm *ViewModel) InvalidateLayout(handle string) {
	if l, ok := vm.layout[handle]; ok {
		if l.HasMeasured {
			// The old measurement is the best estimate for remeasure.
			l.EstimatedHeight = l.MeasuredHeight
		}
		l.HasMeasured = false
	}
}

func (vm *ViewModel) dropLayout(handle string) {
	delete(vm.layout, handle)
}
