package proposal

import (
	"context"
	"log"
	"time"
)

// Decision is the access resolver's verdict, made before any quote content
// loads.
type Decision string

const (
	// DecisionOwner bypasses the anonymous-viewer challenge entirely.
	DecisionOwner Decision = "owner"
	// DecisionViewer admits a previously verified anonymous viewer.
	DecisionViewer Decision = "viewer"
	// DecisionChallenge requires the OTP flow before anything loads.
	DecisionChallenge Decision = "challenge"
)

// OwnerLookup resolves a share token to the owning user id with a minimal
// single-column query. An empty id with nil error means the token matched no
// quote.
type OwnerLookup func(ctx context.Context, shareToken string) (string, error)

// AccessRequest captures everything known about the requester before load.
type AccessRequest struct {
	ShareToken  string
	OwnerBypass bool   // explicit owner-bypass query parameter
	UserID      string // authenticated user, empty when anonymous
	OwnerID     string // quote owner when the caller already resolved it
	Session     *ViewerSession
}

// Resolver decides whether the requester may skip the challenge. Any error
// during the ownership check degrades to "not owner": the resolver fails
// closed to the challenge flow, never open past it.
type Resolver struct {
	lookupOwner OwnerLookup
	now         func() time.Time
}

func NewResolver(lookup OwnerLookup) *Resolver {
	return &Resolver{lookupOwner: lookup, now: time.Now}
}

// Resolve applies the priority order: explicit bypass parameter, then
// authenticated ownership, then a stored unexpired viewer session bound to
// this share token, then the challenge.
func (r *Resolver) Resolve(ctx context.Context, req AccessRequest) Decision {
	if req.OwnerBypass {
		return DecisionOwner
	}

	if req.UserID != "" {
		owner := req.OwnerID
		if owner == "" && r.lookupOwner != nil {
			var err error
			owner, err = r.lookupOwner(ctx, req.ShareToken)
			if err != nil {
				log.Printf("access: ownership check for token %s failed, treating as non-owner: %v", req.ShareToken, err)
				owner = ""
			}
		}
		if owner != "" && owner == req.UserID {
			return DecisionOwner
		}
	}

	if req.Session != nil && req.Session.ValidFor(req.ShareToken, r.now()) {
		return DecisionViewer
	}

	return DecisionChallenge
}
