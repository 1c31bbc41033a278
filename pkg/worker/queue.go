package worker

// fifo is an unbounded first-in first-out queue
type fifo[T any] struct {
	items []T
	head  int
}

func (q *fifo[T]) push(v T) {
	q.items = append(q.items, v)
}

// pop removes the oldest item; ok is false when empty
func (q *fifo[T]) pop() (v T, ok bool) {
	if q.head >= len(q.items) {
		return v, false
	}
	v = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}

func (q *fifo[T]) len() int {
	return len(q.items) - q.head
}

// drain empties the queue and returns its items in order
func (q *fifo[T]) drain() []T {
	out := make([]T, q.len())
	copy(out, q.items[q.head:])
	q.items = nil
	q.head = 0
	return out
}

// stack is the free-list of idle handles
type stack[T any] struct {
	items []T
}

func (s *stack[T]) push(v T) {
	s.items = append(s.items, v)
}

func (s *stack[T]) pop() (v T, ok bool) {
	n := len(s.items)
	if n == 0 {
		return v, false
	}
	v = s.items[n-1]
	var zero T
	s.items[n-1] = zero
	s.items = s.items[:n-1]
	return v, true
}

func (s *stack[T]) len() int {
	return len(s.items)
}

func (s *stack[T]) clear() {
	s.items = nil
}
