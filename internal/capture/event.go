// Package capture provides the PacketSource abstraction, plus two
// concrete implementations (live interface capture and finite pcap-file
// replay) built on gopacket.
package capture

import "context"

// Event is the structured handshake/control-frame record a PacketSource
// yields.
type Event struct {
	Source      string // IPv4 dotted quad
	Destination string // IPv4 dotted quad
	Fingerprint string // hex MD5 JA3 digest, empty if absent/malformed
	PacketSize  int
	IsHandshake bool
	IsSYN       bool
	IsFIN       bool
	IsRST       bool
}

// Interesting reports whether the event is one the pipeline should turn
// into a key: a TLS handshake, or any of SYN/FIN/RST.
func (e *Event) Interesting() bool {
	return e.IsHandshake || e.IsSYN || e.IsFIN || e.IsRST
}

// PacketSource is the minimal capability the pipeline's ingest stage
// needs: a lazy, non-restartable stream of events. Next returns
// (nil, false, nil) at a clean end of stream (file mode EOF only — live
// sources are infinite and end only via ctx cancellation, returning
// (nil, false, ctx.Err())).
type PacketSource interface {
	Next(ctx context.Context) (*Event, bool, error)
	Close() error
}
