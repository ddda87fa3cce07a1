package expression

// Walk visits e and its descendants in depth first order. When fn returns
// false the children of that node are skipped.
func Walk(e Expression, fn func(Expression) bool) {
	if e == nil || !fn(e) {
		return
	}
	if f, ok := e.(Function); ok {
		for _, arg := range f.Args {
			Walk(arg, fn)
		}
	}
}

// Paths returns every path referenced by e, in visiting order.
func Paths(e Expression) []Path {
	var paths []Path
	Walk(e, func(x Expression) bool {
		if p, ok := x.(Path); ok {
			paths = append(paths, p)
		}
		return true
	})
	return paths
}
