// SPDX-License-Identifier: MIT
/*
Package udp streams loop events as fixed-size binary datagrams, one
event per packet. The loop thread is the only sender, so the publisher
packs each event into a reusable frame without locking or allocating.
*/
package udp

import (
	"encoding/binary"
	"fmt"
	"net"

	applog "sndsync/internal/log"
	"sndsync/internal/transport"
)

/*
Packet layout (BigEndian), 38 bytes:

| Field       | Type   | Offset | Description                          |
|-------------|--------|--------|--------------------------------------|
| Sequence    | uint32 | 0      | Monotonically increasing             |
| Kind        | uint8  | 4      | 0 period, 1 late wakeup, 2 gap reset |
| Channel     | uint8  | 5      | 0 in, 1 out, 255 n/a                 |
| SyncFrames  | int64  | 6      | Loop time at the event               |
| Balance     | int64  | 14     | Channel balance (period events)      |
| Correction  | int64  | 22     | Correction parameter (period events) |
| Frames      | int64  | 30     | Lateness or gap size                 |
*/

const packetSize = 38

const (
	kindPeriod     = 0
	kindLateWakeup = 1
	kindGapReset   = 2
)

const (
	channelIn   = 0
	channelOut  = 1
	channelNone = 255
)

// Publisher owns a connected UDP socket and transmits one packet per
// loop event.
type Publisher struct {
	conn  *net.UDPConn
	seq   uint32
	frame [packetSize]byte
}

// NewPublisher dials the target address, e.g. "127.0.0.1:9090".
func NewPublisher(target string) (*Publisher, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target '%s': %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP target '%s': %w", target, err)
	}
	applog.Infof("UDP event publisher connected to %s", conn.RemoteAddr())
	return &Publisher{conn: conn}, nil
}

// Send packs the event into the reusable frame and transmits it.
func (p *Publisher) Send(e transport.Event) error {
	if p.conn == nil {
		return fmt.Errorf("UDP publisher is closed")
	}

	var kind byte
	switch e.Kind {
	case "period":
		kind = kindPeriod
	case "late_wakeup":
		kind = kindLateWakeup
	case "gap_reset":
		kind = kindGapReset
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	channel := byte(channelNone)
	switch e.Channel {
	case "in":
		channel = channelIn
	case "out":
		channel = channelOut
	}

	p.seq++
	binary.BigEndian.PutUint32(p.frame[0:], p.seq)
	p.frame[4] = kind
	p.frame[5] = channel
	binary.BigEndian.PutUint64(p.frame[6:], uint64(e.SyncFrames))
	binary.BigEndian.PutUint64(p.frame[14:], uint64(e.Balance))
	binary.BigEndian.PutUint64(p.frame[22:], uint64(e.Correction))
	binary.BigEndian.PutUint64(p.frame[30:], uint64(e.Frames))

	if _, err := p.conn.Write(p.frame[:]); err != nil {
		return fmt.Errorf("failed to send event packet: %w", err)
	}
	return nil
}

// Close closes the socket. Further sends fail.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

var _ transport.Transport = (*Publisher)(nil)
