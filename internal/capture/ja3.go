package capture

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// errNotClientHello is returned internally when the TLS record or
// handshake framing doesn't look like a ClientHello; callers treat this
// the same as any other packet parse error: skipped, logged at debug,
// never propagated.
var errNotClientHello = errors.New("capture: not a TLS ClientHello")

const (
	recordTypeHandshake = 0x16
	handshakeTypeClient = 0x01
	extSupportedGroups  = 10
	extECPointFormats   = 11
)

// greaseValues are the reserved GREASE cipher/extension/group codes
// (RFC 8701) JA3 excludes from its canonicalisation so fingerprints don't
// fragment across otherwise-identical clients.
var greaseValues = map[uint16]bool{
	0x0a0a: true, 0x1a1a: true, 0x2a2a: true, 0x3a3a: true,
	0x4a4a: true, 0x5a5a: true, 0x6a6a: true, 0x7a7a: true,
	0x8a8a: true, 0x9a9a: true, 0xaaaa: true, 0xbaba: true,
	0xcaca: true, 0xdada: true, 0xeaea: true, 0xfafa: true,
}

// clientHello holds the fields JA3 projects out of a ClientHello.
type clientHello struct {
	version        uint16
	ciphers        []uint16
	extensions     []uint16
	curves         []uint16
	curvePointFmts []uint16
}

// ja3String renders the canonical JA3 string: five comma-separated fields,
// each itself a dash-joined list of decimal values (GREASE excluded).
func (c clientHello) ja3String() string {
	return strings.Join([]string{
		strconv.Itoa(int(c.version)),
		joinUint16(c.ciphers),
		joinUint16(c.extensions),
		joinUint16(c.curves),
		joinUint16(c.curvePointFmts),
	}, ",")
}

func joinUint16(vs []uint16) string {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		if greaseValues[v] {
			continue
		}
		parts = append(parts, strconv.Itoa(int(v)))
	}
	return strings.Join(parts, "-")
}

// ja3Digest returns the hex MD5 of the ClientHello's JA3 string, i.e. the
// fingerprint a composite key is built from.
func ja3Digest(payload []byte) (string, error) {
	ch, err := parseClientHello(payload)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(ch.ja3String()))
	return hex.EncodeToString(sum[:]), nil
}

// parseClientHello walks a raw TLS record payload looking for a
// ClientHello handshake message and extracts the JA3 fields. It is
// deliberately lenient: any framing it doesn't understand yields
// errNotClientHello rather than panicking, since a malformed packet
// should never take the whole capture loop down with it.
func parseClientHello(b []byte) (clientHello, error) {
	var ch clientHello

	// TLS record header: type(1) version(2) length(2)
	if len(b) < 5 || b[0] != recordTypeHandshake {
		return ch, errNotClientHello
	}
	b = b[5:]

	// Handshake header: type(1) length(3)
	if len(b) < 4 || b[0] != handshakeTypeClient {
		return ch, errNotClientHello
	}
	b = b[4:]

	// ClientHello body: version(2) random(32) session_id_len(1) session_id
	if len(b) < 34 {
		return ch, errNotClientHello
	}
	ch.version = binary.BigEndian.Uint16(b[0:2])
	b = b[34:]

	sidLen, b, err := readByteLen(b)
	if err != nil {
		return ch, err
	}
	if len(b) < sidLen {
		return ch, errNotClientHello
	}
	b = b[sidLen:]

	cipherLen, b, err := readUint16Len(b)
	if err != nil {
		return ch, err
	}
	if len(b) < cipherLen || cipherLen%2 != 0 {
		return ch, errNotClientHello
	}
	ch.ciphers = readUint16List(b[:cipherLen])
	b = b[cipherLen:]

	compLen, b, err := readByteLen(b)
	if err != nil {
		return ch, err
	}
	if len(b) < compLen {
		return ch, errNotClientHello
	}
	b = b[compLen:]

	if len(b) == 0 {
		// No extensions block: a legal (if archaic) ClientHello.
		return ch, nil
	}

	extTotalLen, b, err := readUint16Len(b)
	if err != nil {
		return ch, err
	}
	if len(b) < extTotalLen {
		return ch, errNotClientHello
	}
	extBytes := b[:extTotalLen]

	for len(extBytes) >= 4 {
		extType := binary.BigEndian.Uint16(extBytes[0:2])
		extLen := int(binary.BigEndian.Uint16(extBytes[2:4]))
		extBytes = extBytes[4:]
		if len(extBytes) < extLen {
			return ch, errNotClientHello
		}
		body := extBytes[:extLen]
		ch.extensions = append(ch.extensions, extType)

		switch extType {
		case extSupportedGroups:
			if len(body) >= 2 {
				groupsLen := int(binary.BigEndian.Uint16(body[0:2]))
				if groupsLen <= len(body)-2 {
					ch.curves = readUint16List(body[2 : 2+groupsLen])
				}
			}
		case extECPointFormats:
			if len(body) >= 1 {
				fmtsLen := int(body[0])
				if fmtsLen <= len(body)-1 {
					for _, f := range body[1 : 1+fmtsLen] {
						ch.curvePointFmts = append(ch.curvePointFmts, uint16(f))
					}
				}
			}
		}

		extBytes = extBytes[extLen:]
	}

	return ch, nil
}

func readByteLen(b []byte) (int, []byte, error) {
	if len(b) < 1 {
		return 0, nil, errNotClientHello
	}
	return int(b[0]), b[1:], nil
}

func readUint16Len(b []byte) (int, []byte, error) {
	if len(b) < 2 {
		return 0, nil, errNotClientHello
	}
	return int(binary.BigEndian.Uint16(b[0:2])), b[2:], nil
}

func readUint16List(b []byte) []uint16 {
	out := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		out = append(out, binary.BigEndian.Uint16(b[i:i+2]))
	}
	return out
}
