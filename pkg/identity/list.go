package identity

// Destroyer releases what an element owns.
type Destroyer interface {
	Destroy()
}

// List is an owned sequence. Destroy destroys every element before dropping
// the container, so secrets held by elements are wiped.
type List[T Destroyer] struct {
	items []T
}

// NewList returns an empty list.
func NewList[T Destroyer]() *List[T] {
	return &List[T]{}
}

// Push appends v. The list takes ownership.
func (l *List[T]) Push(v T) {
	l.items = append(l.items, v)
}

// Len returns the number of elements.
func (l *List[T]) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// Get returns element i.
func (l *List[T]) Get(i int) T {
	return l.items[i]
}

// Items returns the elements. The slice is owned by the list.
func (l *List[T]) Items() []T {
	if l == nil {
		return nil
	}
	return l.items
}

// Destroy destroys every element and empties the list.
func (l *List[T]) Destroy() {
	if l == nil {
		return
	}
	for _, v := range l.items {
		v.Destroy()
	}
	clear(l.items)
	l.items = nil
}
