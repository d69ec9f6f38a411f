package formats

// ordered is a map keeping the insertion order of its keys.
type ordered[K comparable, V any] struct {
	keys []K
	m    map[K]V
}

func newOrdered[K comparable, V any]() *ordered[K, V] {
	return &ordered[K, V]{m: map[K]V{}}
}

func (o *ordered[K, V]) get(k K) (V, bool) {
	v, ok := o.m[k]
	return v, ok
}

// setDefault stores v unless k is present and returns the stored value.
func (o *ordered[K, V]) setDefault(k K, v V) V {
	if existing, ok := o.m[k]; ok {
		return existing
	}
	o.keys = append(o.keys, k)
	o.m[k] = v
	return v
}

func (o *ordered[K, V]) len() int {
	return len(o.keys)
}

func (o *ordered[K, V]) values() []V {
	out := make([]V, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.m[k])
	}
	return out
}
