package app

import (
	"context"
	"fmt"

	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/ports"
	"github.com/bft-labs/serialship/internal/protocol"
)

// Negotiator announces file descriptors to the receiver.
type Negotiator struct {
	link   *Link
	cfg    TransferConfig
	logger ports.Logger
}

// NewNegotiator creates a negotiator on link.
func NewNegotiator(link *Link, cfg TransferConfig, logger ports.Logger) *Negotiator {
	return &Negotiator{link: link, cfg: cfg, logger: logger}
}

// Announce sends FILE_INFO and waits for ACK. An ERROR answer yields
// ErrPeerRejected; silence yields ErrTransportTimeout.
func (n *Negotiator) Announce(ctx context.Context, desc domain.FileDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if err := n.link.Send(domain.FileInfo{Descriptor: desc}); err != nil {
		return err
	}
	resp, err := n.link.Await(ctx, n.cfg.AckTimeout, protocol.RespAck)
	if err != nil {
		return fmt.Errorf("file info: %w", err)
	}
	if resp.Kind == protocol.RespError {
		return peerError(resp)
	}
	n.logger.Debug("file accepted",
		ports.String("path", desc.Path),
		ports.Uint32("size", desc.Size),
		ports.Hex32("crc", desc.CRC),
	)
	return nil
}
