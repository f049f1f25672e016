package transport

import (
	"context"

	"go.uber.org/zap"

	"pollux/internal/gossip"
	"pollux/internal/identity"
	"pollux/internal/store"
	"pollux/internal/wire"
)

// Server implements the pollux.Gossip service on top of a local store.
type Server struct {
	self       identity.ID
	store      *store.Store
	dispatcher *gossip.Dispatcher
	logger     *zap.Logger
}

var _ GossipServer = (*Server)(nil)

// NewServer creates a gossip server for the local cell self.
func NewServer(self identity.ID, s *store.Store, d *gossip.Dispatcher, logger *zap.Logger) *Server {
	return &Server{
		self:       self,
		store:      s,
		dispatcher: d,
		logger:     logger.Named("server"),
	}
}

// Push dispatches every message and reports how many changed the local view.
func (s *Server) Push(ctx context.Context, req *wire.PushRequest) (*wire.PushResponse, error) {
	var changed uint64
	for _, msg := range req.Messages {
		if s.dispatcher.Dispatch(msg) {
			changed++
		}
	}

	s.logger.Debug("received push",
		zap.Stringer("from", req.From),
		zap.Int("messages", len(req.Messages)),
		zap.Uint64("changed", changed),
	)
	return &wire.PushResponse{Changed: changed}, nil
}

// Sync merges the caller's table and answers with the local one.
func (s *Server) Sync(ctx context.Context, req *wire.SyncRequest) (*wire.SyncResponse, error) {
	changed := s.dispatcher.Merge(req.Snapshot)

	s.logger.Debug("received sync",
		zap.Stringer("from", req.From),
		zap.Int("records", len(req.Snapshot)),
		zap.Int("changed", changed),
	)
	return &wire.SyncResponse{
		Responder: s.self,
		Snapshot:  s.store.Snapshot(),
	}, nil
}
