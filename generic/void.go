package generic

// Void is the empty value, for things like Set[T] that only care about keys.
type Void struct{}

func NewVoid() Void {
	return Void{}
}
