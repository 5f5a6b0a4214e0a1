package repositories

// ConnectivityMonitor reports whether the network is reachable and notifies
// subscribers on changes.
type ConnectivityMonitor interface {
	Online() bool
	// Changes delivers the new online state after each transition. Delivery
	// is best-effort; consumers also poll Online.
	Changes() <-chan bool
	Close() error
}
