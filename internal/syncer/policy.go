package syncer

// Policy configures remote sync for one store.
type Policy struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// circuit. Zero disables the breaker.
	FailureThreshold int
	// RatePerSecond caps remote calls. Zero means unlimited.
	RatePerSecond float64
	// Burst is the limiter bucket size; values below 1 are treated as 1.
	Burst int
}

// CartPolicy is the default cart policy: no breaker, no rate limit.
func CartPolicy() Policy {
	return Policy{}
}

// WishlistPolicy is the default wishlist policy: the circuit opens after
// three consecutive failures.
func WishlistPolicy() Policy {
	return Policy{FailureThreshold: 3}
}
