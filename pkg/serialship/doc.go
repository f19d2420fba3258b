// Package serialship is an embeddable client for pushing files to, and
// mirroring datasets from, a microcontroller over a serial link.
//
// # Basic Usage
//
//	cfg := serialship.DefaultConfig()
//	cfg.Port = "/dev/ttyUSB0"
//
//	client, err := serialship.New(cfg, serialship.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Open(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	report, err := client.Send(ctx, serialship.SendRequest{Target: "mnist"})
//
// A target that names an existing file is sent on its own, a directory is
// sent recursively, and anything else is expanded as a model bundle using
// [BundleConfig].
//
// # Receiving
//
// [Client.Receive] runs the peer side of the protocol, writing files below
// a root directory and optionally serving datasets. It is used by tests and
// for host-to-host transfers.
//
// # Events and Plugins
//
// Implement [EventHandler] (embedding [BaseEventHandler]) to observe
// progress. Plugins registered with [WithPlugin] are initialized by
// [Client.Open] and shut down by [Client.Close]; see the plugins directory
// for a watcher that re-pushes changed files and a cleaner for stale
// partial files.
//
// Operations on one Client are serialized.
package serialship
