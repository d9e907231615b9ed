package capture

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog"
)

// FileSource replays frames from a classic pcap file; pcapng files are not
// read. Unlike LiveSource it
// is finite: once the file is exhausted, Next reports clean end of
// stream rather than blocking.
type FileSource struct {
	f      *os.File
	reader *pcapgo.Reader
	log    zerolog.Logger
}

// NewFileSource opens path as a classic pcap file. (pcapng support, if
// ever needed, would use pcapgo.NewNgReader against the same handle.)
func NewFileSource(path string, log zerolog.Logger) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file %q: %w", path, err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read pcap header %q: %w", path, err)
	}
	return &FileSource{f: f, reader: r, log: log}, nil
}

// Next returns (nil, false, nil) at clean EOF, per the PacketSource
// contract file-mode sources follow.
func (s *FileSource) Next(ctx context.Context) (*Event, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		default:
		}

		data, _, err := s.reader.ReadPacketData()
		if err == io.EOF {
			return nil, false, nil
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

// Close releases the underlying file handle.
func (s *FileSource) Close() error {
	return s.f.Close()
}
