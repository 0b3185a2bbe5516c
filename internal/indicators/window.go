package indicators

import "sync"

// Window is a bounded FIFO of prices. Appending beyond the cap evicts the
// oldest value; order is always chronological.
type Window struct {
	mu     sync.RWMutex
	prices []float64
	cap    int
}

// NewWindow builds a window holding at most capacity prices.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 100
	}
	return &Window{
		prices: make([]float64, 0, capacity),
		cap:    capacity,
	}
}

// Push appends a price and returns the resulting length.
func (w *Window) Push(price float64) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prices = append(w.prices, price)
	if len(w.prices) > w.cap {
		n := copy(w.prices, w.prices[len(w.prices)-w.cap:])
		w.prices = w.prices[:n]
	}
	return len(w.prices)
}

// Values returns a copy of the window contents, oldest first.
func (w *Window) Values() []float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]float64, len(w.prices))
	copy(out, w.prices)
	return out
}

// Len reports the number of stored prices.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.prices)
}

// Cap reports the configured capacity.
func (w *Window) Cap() int { return w.cap }

// Last returns the newest price and false when the window is empty.
func (w *Window) Last() (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.prices) == 0 {
		return 0, false
	}
	return w.prices[len(w.prices)-1], true
}
