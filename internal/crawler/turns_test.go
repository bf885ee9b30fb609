package crawler

import (
	"slices"
	"sync"
	"testing"
)

func TestTurns(t *testing.T) {
	t.Parallel()

	t.Run("tickets settle in issue order", func(t *testing.T) {
		t.Parallel()

		tr := newTurns()
		tickets := []int{tr.issue(), tr.issue(), tr.issue(), tr.issue()}

		var (
			mu    sync.Mutex
			order []int
			wg    sync.WaitGroup
		)
		for _, tk := range slices.Backward(tickets) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !tr.wait(tk) {
					t.Errorf("ticket %d: wait returned false", tk)
				}
				mu.Lock()
				order = append(order, tk)
				mu.Unlock()
				tr.done(tk)
			}()
		}
		wg.Wait()

		if !slices.Equal(order, []int{1, 2, 3, 4}) {
			t.Errorf("expected tickets in issue order, got %v", order)
		}
	})

	t.Run("done without waiting lets later tickets through", func(t *testing.T) {
		t.Parallel()

		tr := newTurns()
		first, second := tr.issue(), tr.issue()
		tr.done(first)
		if !tr.wait(second) {
			t.Error("expected second ticket to get its turn")
		}
	})

	t.Run("stop releases waiters", func(t *testing.T) {
		t.Parallel()

		tr := newTurns()
		tr.issue()
		second := tr.issue()

		result := make(chan bool)
		go func() { result <- tr.wait(second) }()
		tr.stop()
		if <-result {
			t.Error("expected wait to report the stop")
		}
	})
}
