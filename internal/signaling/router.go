package signaling

import "log/slog"

// Recipient is the minimal surface the Router needs from a peer session: an
// id and a way to push an envelope to its control channel. Implemented by
// internal/session.Session.
type Recipient interface {
	ClientID() string
	Send(Envelope) error
}

// Directory looks up a Recipient by client id. Implemented by
// internal/session.Registry.
type Directory interface {
	Get(clientID string) (Recipient, bool)
}

// Router relays p2p_offer / p2p_answer / p2p_ice_candidate envelopes between
// two peer sessions. It performs no parsing of SDP or candidate bodies: the
// four-line contract from spec section 4.6.
type Router struct {
	directory Directory
	logger    *slog.Logger
}

// NewRouter builds a Router over the given Directory.
func NewRouter(directory Directory) *Router {
	return &Router{directory: directory, logger: slog.Default().With("component", "router")}
}

// routedTypes are the three signaling kinds the router forwards.
var routedTypes = map[Type]bool{
	TypeP2POffer:     true,
	TypeP2PAnswer:    true,
	TypeP2PCandidate: true,
}

// Route forwards env (sent by sender) to env.To, rewriting From to the
// sender's id. If env.Type isn't a routed kind, or the target isn't present
// in the directory, Route drops the message and logs.
func (r *Router) Route(sender Recipient, env Envelope) {
	if !routedTypes[env.Type] {
		r.logger.Warn("dropping non-routable envelope", "type", env.Type)
		return
	}
	target, ok := r.directory.Get(env.To)
	if !ok {
		r.logger.Info("dropping envelope for unknown recipient", "to", env.To, "type", env.Type)
		return
	}
	env.From = sender.ClientID()
	env.To = ""
	if err := target.Send(env); err != nil {
		r.logger.Info("failed to deliver routed envelope", "to", target.ClientID(), "err", err)
	}
}
