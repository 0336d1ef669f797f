package annotation

import "time"

type CoordinatorOpt func(*Coordinator)

// WithPostTTL sets how long a fresh post lives without comment activity.
func WithPostTTL(d time.Duration) CoordinatorOpt {
	return func(c *Coordinator) {
		c.postTTL = d
	}
}

// WithTTLExtension sets how much a new comment extends the post's expiry.
func WithTTLExtension(d time.Duration) CoordinatorOpt {
	return func(c *Coordinator) {
		c.ttlExtension = d
	}
}

// WithStoreTimeout bounds each repository call.
func WithStoreTimeout(d time.Duration) CoordinatorOpt {
	return func(c *Coordinator) {
		c.storeTimeout = d
	}
}
