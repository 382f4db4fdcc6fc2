package wake

import (
	"fmt"
	"net"
	"strings"
)

// magicPacketSize is six 0xFF sync bytes followed by the 6-byte MAC
// repeated sixteen times (§4.2 step 2).
const magicPacketSize = 6 + 16*6

// PacketSender transmits a Wake-on-LAN magic packet. Implemented over
// net.PacketConn so tests can substitute a fake connection and assert on
// the payload without opening a real UDP socket.
type PacketSender struct {
	conn net.PacketConn
	addr net.Addr
}

// NewPacketSender dials a UDP "connection" to the directed broadcast
// address of the worker's subnet, port 9 (discard, conventionally used
// for Wake-on-LAN).
func NewPacketSender(broadcastAddr string) (*PacketSender, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("wake: listen packet: %w", err)
	}
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:9", broadcastAddr))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wake: resolve broadcast addr: %w", err)
	}
	return &PacketSender{conn: conn, addr: addr}, nil
}

// NewPacketSenderWithConn builds a PacketSender around an already-open
// connection and destination address, for tests.
func NewPacketSenderWithConn(conn net.PacketConn, addr net.Addr) *PacketSender {
	return &PacketSender{conn: conn, addr: addr}
}

// Close releases the underlying connection.
func (p *PacketSender) Close() error { return p.conn.Close() }

// buildMagicPacket encodes mac (colon-separated hex, e.g. "aa:bb:cc:dd:ee:ff")
// into the 102-byte Wake-on-LAN payload.
func buildMagicPacket(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("wake: parse mac %q: %w", mac, err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("wake: mac %q is not 48-bit (got %d bytes)", mac, len(hw))
	}

	packet := make([]byte, 0, magicPacketSize)
	for i := 0; i < 6; i++ {
		packet = append(packet, 0xFF)
	}
	for i := 0; i < 16; i++ {
		packet = append(packet, hw...)
	}
	return packet, nil
}

// Send transmits a single magic packet for mac.
func (p *PacketSender) Send(mac string) error {
	packet, err := buildMagicPacket(mac)
	if err != nil {
		return err
	}
	n, err := p.conn.WriteTo(packet, p.addr)
	if err != nil {
		return fmt.Errorf("wake: send magic packet: %w", err)
	}
	if n != len(packet) {
		return fmt.Errorf("wake: short write sending magic packet: wrote %d of %d bytes", n, len(packet))
	}
	return nil
}

// NormalizeMAC lowercases and validates a MAC address string, returning it
// in colon-separated form.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return "", fmt.Errorf("wake: invalid mac %q: %w", mac, err)
	}
	return strings.ToLower(hw.String()), nil
}
