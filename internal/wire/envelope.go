package wire

import (
	"pollux/internal/cell"
	"pollux/internal/gossip"
	"pollux/internal/identity"
)

// PushRequest delivers gossip messages to a peer.
type PushRequest struct {
	From     identity.ID
	Messages []gossip.Message
}

// PushResponse reports how many pushed messages changed the peer's view.
type PushResponse struct {
	Changed uint64
}

// SyncRequest carries the caller's full membership table.
type SyncRequest struct {
	From     identity.ID
	Snapshot []cell.Metadata
}

// SyncResponse carries the responder's table after merging the request.
type SyncResponse struct {
	Responder identity.ID
	Snapshot  []cell.Metadata
}

func (r *PushRequest) marshal(b []byte) []byte {
	b = appendMessage(b, 1, func(b []byte) []byte { return appendID(b, r.From) })
	for i := range r.Messages {
		msg := &r.Messages[i]
		b = appendMessage(b, 2, func(b []byte) []byte { return appendGossip(b, msg) })
	}
	return b
}

func (r *PushRequest) unmarshal(b []byte) error {
	*r = PushRequest{}
	return eachField(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			if err = f.wantBytes(); err == nil {
				r.From, err = decodeID(f.bytes)
			}
		case 2:
			if err = f.wantBytes(); err == nil {
				var msg gossip.Message
				if msg, err = decodeGossip(f.bytes); err == nil {
					r.Messages = append(r.Messages, msg)
				}
			}
		}
		return err
	})
}

func (r *PushResponse) marshal(b []byte) []byte {
	return appendVarint(b, 1, r.Changed)
}

func (r *PushResponse) unmarshal(b []byte) error {
	*r = PushResponse{}
	return eachField(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		if err := f.wantVarint(); err != nil {
			return err
		}
		r.Changed = f.varint
		return nil
	})
}

func (r *SyncRequest) marshal(b []byte) []byte {
	return appendSnapshot(b, r.From, r.Snapshot)
}

func (r *SyncRequest) unmarshal(b []byte) error {
	*r = SyncRequest{}
	var err error
	r.From, r.Snapshot, err = decodeSnapshot(b)
	return err
}

func (r *SyncResponse) marshal(b []byte) []byte {
	return appendSnapshot(b, r.Responder, r.Snapshot)
}

func (r *SyncResponse) unmarshal(b []byte) error {
	*r = SyncResponse{}
	var err error
	r.Responder, r.Snapshot, err = decodeSnapshot(b)
	return err
}

// appendSnapshot writes the shared layout of SyncRequest and SyncResponse.
func appendSnapshot(b []byte, from identity.ID, snapshot []cell.Metadata) []byte {
	b = appendMessage(b, 1, func(b []byte) []byte { return appendID(b, from) })
	for i := range snapshot {
		m := &snapshot[i]
		b = appendMessage(b, 2, func(b []byte) []byte { return appendMetadata(b, m) })
	}
	return b
}

func decodeSnapshot(b []byte) (identity.ID, []cell.Metadata, error) {
	var (
		from     identity.ID
		snapshot []cell.Metadata
	)
	err := eachField(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			if err = f.wantBytes(); err == nil {
				from, err = decodeID(f.bytes)
			}
		case 2:
			if err = f.wantBytes(); err == nil {
				var m cell.Metadata
				if m, err = decodeMetadata(f.bytes); err == nil {
					snapshot = append(snapshot, m)
				}
			}
		}
		return err
	})
	if err != nil {
		return identity.ID{}, nil, err
	}
	return from, snapshot, nil
}
