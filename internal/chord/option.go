package chord

// Option holds a value or nothing.
type Option[T any] struct {
	v  T
	ok bool
}

// Some wraps v.
func Some[T any](v T) Option[T] {
	return Option[T]{v: v, ok: true}
}

// None returns the empty option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.v, o.ok
}

// IsSome reports whether a value is present.
func (o Option[T]) IsSome() bool {
	return o.ok
}
