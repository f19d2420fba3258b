package filewatcher

import "github.com/bft-labs/serialship/pkg/serialship"

// WithFileWatcher returns a serialship Option that re-sends cfg.Target
// whenever its files change while the client is open.
//
// Usage:
//
//	client, err := serialship.New(cfg,
//	    filewatcher.WithFileWatcher(filewatcher.DefaultConfig("mnist")),
//	)
func WithFileWatcher(cfg Config) serialship.Option {
	return serialship.WithPlugin(New(cfg))
}
