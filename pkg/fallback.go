package nxload

// fallback is one rule in an ordered list of ways to obtain an optional
// field. apply reports ok=false when the rule does not apply and the next
// one should be tried.
type fallback[T any] struct {
	name  string
	apply func() (value T, ok bool, err error)
}

// firstOf runs the rules in order and returns the value of the first one
// that applies, together with its name. An error stops the chain.
func firstOf[T any](rules ...fallback[T]) (T, string, error) {
	var zero T
	for _, rule := range rules {
		value, ok, err := rule.apply()
		if err != nil {
			return zero, rule.name, err
		}
		if ok {
			return value, rule.name, nil
		}
	}
	return zero, "", nil
}
