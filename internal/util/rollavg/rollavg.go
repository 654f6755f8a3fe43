// Package rollavg provides a fixed-window rolling average used to
// smooth bias values before they hit the merge.
package rollavg

// Average keeps the last Size samples. It reports zero until the
// window has filled once, so a cold start never serves a half-window
// average.
type Average struct {
	size   int
	values []float32
	next   int
	full   bool
}

func New(size int) *Average {
	if size < 1 {
		size = 1
	}
	return &Average{
		size:   size,
		values: make([]float32, size),
	}
}

// Add records a sample and returns the current average.
func (a *Average) Add(value float32) float32 {
	a.values[a.next] = value
	a.next++
	if a.next == a.size {
		a.next = 0
		a.full = true
	}
	return a.Value()
}

// Value returns the window average, or zero while filling.
func (a *Average) Value() float32 {
	if !a.full {
		return 0
	}
	var sum float32
	for _, v := range a.values {
		sum += v
	}
	return sum / float32(a.size)
}

// Ready reports whether the window has filled once.
func (a *Average) Ready() bool {
	return a.full
}

// Reset empties the window.
func (a *Average) Reset() {
	a.next = 0
	a.full = false
	for i := range a.values {
		a.values[i] = 0
	}
}
