package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/rs/zerolog"
)

// bpfFilter restricts capture to TCP port 443 so the decode path only ever
// sees candidate TLS traffic plus the control-flag packets (SYN/FIN/RST)
// needed for non-handshake interesting events.
const bpfFilter = "tcp port 443"

// LiveSource reads frames off a live interface via libpcap.
type LiveSource struct {
	handle *pcap.Handle
	log    zerolog.Logger
}

// NewLiveSource opens iface in promiscuous mode with a short read timeout
// so Next can observe ctx cancellation promptly instead of blocking on
// pcap's own poll loop indefinitely.
func NewLiveSource(iface string, snaplen int32, log zerolog.Logger) (*LiveSource, error) {
	handle, err := pcap.OpenLive(iface, snaplen, true, 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("open interface %q: %w", iface, err)
	}
	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set bpf filter: %w", err)
	}
	return &LiveSource{handle: handle, log: log}, nil
}

// Next blocks until a decodable frame arrives, ctx is cancelled, or the
// handle errors. A live interface never reaches end of stream on its own.
func (s *LiveSource) Next(ctx context.Context) (*Event, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		default:
		}

		data, _, err := s.handle.ReadPacketData()
		if err == pcap.NextErrorTimeoutExpired {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("read packet: %w", err)
		}

		ev, ok := decodeEvent(data, s.log)
		if !ok {
			continue
		}
		return ev, true, nil
	}
}

// Close releases the underlying pcap handle.
func (s *LiveSource) Close() error {
	s.handle.Close()
	return nil
}

// decodeEvent parses one raw frame into an Event. It returns ok=false for
// anything that isn't a TCP/IPv4 packet worth reporting on — malformed or
// uninteresting frames are silently skipped, never propagated as pipeline
// errors.
func decodeEvent(data []byte, log zerolog.Logger) (*Event, bool) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})

	ipLayer := packet.Layer(layers.LayerTypeIPv4)
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if ipLayer == nil || tcpLayer == nil {
		return nil, false
	}
	ip, _ := ipLayer.(*layers.IPv4)
	tcp, _ := tcpLayer.(*layers.TCP)

	ev := &Event{
		Source:      ip.SrcIP.String(),
		Destination: ip.DstIP.String(),
		PacketSize:  len(data),
		IsSYN:       tcp.SYN && !tcp.ACK,
		IsFIN:       tcp.FIN,
		IsRST:       tcp.RST,
	}

	if len(tcp.Payload) > 0 {
		if fp, err := ja3Digest(tcp.Payload); err == nil {
			ev.IsHandshake = true
			ev.Fingerprint = fp
		} else if tcp.Payload[0] == recordTypeHandshake {
			// Looked like a handshake record but didn't parse cleanly;
			// still worth surfacing as a handshake event with no
			// fingerprint rather than dropping it outright.
			ev.IsHandshake = true
			log.Debug().Err(err).Msg("client hello parse failed")
		}
	}

	if !ev.Interesting() {
		return nil, false
	}
	return ev, true
}
