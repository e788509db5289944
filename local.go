package greenhouse

// Local holds one value per task. A task's entry is dropped when the
// task terminates.
type Local[T any] struct {
	noCopy noCopy
	values map[*Task]T
}

// NewLocal creates empty task-local storage.
func NewLocal[T any]() *Local[T] {
	return &Local[T]{values: make(map[*Task]T)}
}

// Get returns t's value, or ErrNoLocal if t has none.
func (l *Local[T]) Get(t *Task) (T, error) {
	v, ok := l.values[t]
	if !ok {
		return v, ErrNoLocal
	}
	return v, nil
}

// Set stores v for t.
func (l *Local[T]) Set(t *Task, v T) {
	if _, ok := l.values[t]; !ok {
		t.onExit(func() { delete(l.values, t) })
	}
	l.values[t] = v
}

// Delete removes t's value.
func (l *Local[T]) Delete(t *Task) {
	delete(l.values, t)
}

// Len returns the number of tasks holding a value.
func (l *Local[T]) Len() int {
	return len(l.values)
}
