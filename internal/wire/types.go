package wire

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"pollux/internal/cell"
	"pollux/internal/clock"
	"pollux/internal/gossip"
	"pollux/internal/identity"
)

func appendID(b []byte, id identity.ID) []byte {
	b = appendVarint(b, 1, id.Timestamp)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	return protowire.AppendBytes(b, id.Tag[:])
}

func decodeID(b []byte) (identity.ID, error) {
	var id identity.ID
	err := eachField(b, func(f field) error {
		switch f.num {
		case 1:
			if err := f.wantVarint(); err != nil {
				return err
			}
			id.Timestamp = f.varint
		case 2:
			if err := f.wantBytes(); err != nil {
				return err
			}
			tag, err := uuid.FromBytes(f.bytes)
			if err != nil {
				return malformed("id tag: %v", err)
			}
			id.Tag = tag
		}
		return nil
	})
	return id, err
}

func appendClock(b []byte, num protowire.Number, vc clock.VectorClock) []byte {
	for _, e := range vc.Entries() {
		b = appendMessage(b, num, func(b []byte) []byte {
			b = appendMessage(b, 1, func(b []byte) []byte { return appendID(b, e.Origin) })
			return appendVarint(b, 2, e.Counter)
		})
	}
	return b
}

func decodeClockEntry(b []byte) (clock.Entry, error) {
	var e clock.Entry
	err := eachField(b, func(f field) error {
		switch f.num {
		case 1:
			if err := f.wantBytes(); err != nil {
				return err
			}
			origin, err := decodeID(f.bytes)
			if err != nil {
				return err
			}
			e.Origin = origin
		case 2:
			if err := f.wantVarint(); err != nil {
				return err
			}
			e.Counter = f.varint
		}
		return nil
	})
	return e, err
}

func appendEndpoint(b []byte, num protowire.Number, ap netip.AddrPort) []byte {
	if !ap.IsValid() {
		return b
	}
	return appendString(b, num, ap.String())
}

func decodeEndpoint(b []byte) (netip.AddrPort, error) {
	if len(b) == 0 {
		return netip.AddrPort{}, nil
	}
	ap, err := netip.ParseAddrPort(string(b))
	if err != nil {
		return netip.AddrPort{}, malformed("endpoint: %v", err)
	}
	return ap, nil
}

func appendMetadata(b []byte, m *cell.Metadata) []byte {
	b = appendMessage(b, 1, func(b []byte) []byte { return appendID(b, m.ID) })
	b = appendVarint(b, 2, uint64(m.Status))
	b = appendEndpoint(b, 3, m.Endpoint)
	b = appendClock(b, 4, m.Version)
	if !m.Updated.IsZero() {
		b = appendVarint(b, 5, uint64(m.Updated.UnixNano()))
	}
	return b
}

func decodeMetadata(b []byte) (cell.Metadata, error) {
	var (
		m       cell.Metadata
		entries []clock.Entry
	)
	err := eachField(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			if err = f.wantBytes(); err == nil {
				m.ID, err = decodeID(f.bytes)
			}
		case 2:
			if err = f.wantVarint(); err == nil {
				m.Status = cell.Status(f.varint)
			}
		case 3:
			if err = f.wantBytes(); err == nil {
				m.Endpoint, err = decodeEndpoint(f.bytes)
			}
		case 4:
			if err = f.wantBytes(); err == nil {
				var e clock.Entry
				if e, err = decodeClockEntry(f.bytes); err == nil {
					entries = append(entries, e)
				}
			}
		case 5:
			if err = f.wantVarint(); err == nil {
				m.Updated = time.Unix(0, int64(f.varint))
			}
		}
		return err
	})
	if err != nil {
		return cell.Metadata{}, err
	}
	m.Version = clock.FromEntries(entries)
	return m, nil
}

func appendGossip(b []byte, msg *gossip.Message) []byte {
	b = appendVarint(b, 1, uint64(msg.Kind))
	b = appendMessage(b, 2, func(b []byte) []byte { return appendID(b, msg.Cell) })
	b = appendMessage(b, 3, func(b []byte) []byte { return appendID(b, msg.Origin) })
	b = appendClock(b, 4, msg.Version)
	if msg.Metadata != nil {
		b = appendMessage(b, 5, func(b []byte) []byte { return appendMetadata(b, msg.Metadata) })
	}
	return appendEndpoint(b, 6, msg.Endpoint)
}

func decodeGossip(b []byte) (gossip.Message, error) {
	var (
		msg     gossip.Message
		entries []clock.Entry
	)
	err := eachField(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			if err = f.wantVarint(); err == nil {
				msg.Kind = gossip.Kind(f.varint)
			}
		case 2:
			if err = f.wantBytes(); err == nil {
				msg.Cell, err = decodeID(f.bytes)
			}
		case 3:
			if err = f.wantBytes(); err == nil {
				msg.Origin, err = decodeID(f.bytes)
			}
		case 4:
			if err = f.wantBytes(); err == nil {
				var e clock.Entry
				if e, err = decodeClockEntry(f.bytes); err == nil {
					entries = append(entries, e)
				}
			}
		case 5:
			if err = f.wantBytes(); err == nil {
				var m cell.Metadata
				if m, err = decodeMetadata(f.bytes); err == nil {
					msg.Metadata = &m
				}
			}
		case 6:
			if err = f.wantBytes(); err == nil {
				msg.Endpoint, err = decodeEndpoint(f.bytes)
			}
		}
		return err
	})
	if err != nil {
		return gossip.Message{}, err
	}
	msg.Version = clock.FromEntries(entries)
	return msg, nil
}
