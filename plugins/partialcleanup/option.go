package partialcleanup

import "github.com/bft-labs/serialship/pkg/serialship"

// WithPartialCleanup returns a serialship Option that removes stale
// partial files under cfg.Root while the client is open.
//
// Usage:
//
//	client, err := serialship.New(cfg,
//	    partialcleanup.WithPartialCleanup(partialcleanup.DefaultConfig("/srv/incoming")),
//	)
func WithPartialCleanup(cfg Config) serialship.Option {
	return serialship.WithPlugin(New(cfg))
}
