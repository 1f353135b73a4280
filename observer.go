package offline

// Observer receives counters from the engine. internal/obs provides the
// Prometheus implementation; nil observers are replaced with a no-op.
type Observer interface {
	CacheLookup(role Role, hit bool)
	CacheStoreError(op string)
	StrategyResponse(policy Policy, source string)
	QueueDepth(n int)
	QueueRejected()
	ReplayResult(outcome string)
	PushReceived(decoded bool)
	NotificationClick(outcome ClickOutcome)
}

type nopObserver struct{}

func (nopObserver) CacheLookup(Role, bool)          {}
func (nopObserver) CacheStoreError(string)          {}
func (nopObserver) StrategyResponse(Policy, string) {}
func (nopObserver) QueueDepth(int)                  {}
func (nopObserver) QueueRejected()                  {}
func (nopObserver) ReplayResult(string)             {}
func (nopObserver) PushReceived(bool)               {}
func (nopObserver) NotificationClick(ClickOutcome)  {}
