package layer

import "weak"

// Observer is a non-owning reference to a value that may be garbage collected.
// It has to be locked into a strong pointer before use.
type Observer[T any] struct {
	p weak.Pointer[T]
}

func Observe[T any](v *T) Observer[T] {
	return Observer[T]{p: weak.Make(v)}
}

// Lock returns a strong pointer, or false when the value is gone (or never was)
func (o Observer[T]) Lock() (*T, bool) {
	v := o.p.Value()
	return v, v != nil
}

// Valid reports whether the value is still there. It may be gone right after.
func (o Observer[T]) Valid() bool {
	return o.p.Value() != nil
}
