package padding

import "sync/atomic"

var defaultFactory atomic.Pointer[Factory]

func init() {
	defaultFactory.Store(MustNewFactory([]byte(DefaultScheme)))
}

// Default returns the process-wide default padding factory. Safe for
// concurrent use; the read path is lock-free.
func Default() *Factory {
	return defaultFactory.Load()
}

// SetDefault atomically replaces the process-wide default factory, used
// when a client-side Session receives UpdatePaddingScheme and wants future
// sessions to start from the server's scheme too. Unlike a one-time-init
// cell, this genuinely takes effect on every call.
func SetDefault(f *Factory) {
	defaultFactory.Store(f)
}
