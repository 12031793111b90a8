package generic

// Set is an unordered collection of distinct items. Implementations are not safe for concurrent use.
type Set[T comparable] interface {
	// Add inserts item, returning false if it was already present.
	Add(item T) bool
	// AddAll inserts every item, returning how many were new.
	AddAll(items ...T) int
	Clear()
	Clone() Set[T]
	// Contains returns true if every one of items is present.
	Contains(items ...T) bool
	// ContainsAny returns true if at least one of items is present.
	ContainsAny(items ...T) bool
	Count() int
	// Remove deletes item, returning false if it was not present.
	Remove(item T) bool
	// ToSlice returns the items in no particular order.
	ToSlice() []T
}

func NewSet[T comparable](items ...T) Set[T] {
	s := make(hashSet[T], len(items))
	s.AddAll(items...)
	return &s
}

type hashSet[T comparable] map[T]Void

func (s *hashSet[T]) Add(item T) bool {
	if _, found := (*s)[item]; found {
		return false
	}
	(*s)[item] = NewVoid()
	return true
}

func (s *hashSet[T]) AddAll(items ...T) (added int) {
	for _, item := range items {
		if s.Add(item) {
			added++
		}
	}
	return added
}

func (s *hashSet[T]) Clear() {
	*s = make(hashSet[T])
}

func (s *hashSet[T]) Clone() Set[T] {
	return NewSet(s.ToSlice()...)
}

func (s *hashSet[T]) Contains(items ...T) bool {
	for _, item := range items {
		if _, found := (*s)[item]; !found {
			return false
		}
	}
	return true
}

func (s *hashSet[T]) ContainsAny(items ...T) bool {
	for _, item := range items {
		if _, found := (*s)[item]; found {
			return true
		}
	}
	return false
}

func (s *hashSet[T]) Count() int {
	return len(*s)
}

func (s *hashSet[T]) Remove(item T) bool {
	if _, found := (*s)[item]; !found {
		return false
	}
	delete(*s, item)
	return true
}

func (s *hashSet[T]) ToSlice() []T {
	slice := make([]T, 0, len(*s))
	for item := range *s {
		slice = append(slice, item)
	}
	return slice
}
