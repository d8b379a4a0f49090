package viewer

import (
	"errors"
	"time"

	"quotely/api/internal/auth"
	"quotely/api/internal/proposal"
	"quotely/api/internal/util"
)

var ErrSessionMismatch = errors.New("session does not cover this proposal")

// IssueSession mints a signed session for a viewer who just passed the
// challenge. The session is bound to exactly one share token.
func IssueSession(secret []byte, shareToken, email string, ttl time.Duration) (proposal.ViewerSession, error) {
	expiresAt := time.Now().Add(ttl)
	token, err := auth.IssueToken(secret, auth.Claims{
		Sub:  shareToken,
		Name: MaskEmail(email),
		Role: auth.RoleViewer,
		JTI:  util.NewID("vwr"),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return proposal.ViewerSession{}, err
	}
	return proposal.ViewerSession{
		Token:      token,
		ShareToken: shareToken,
		ExpiresAt:  expiresAt,
	}, nil
}

// VerifySession validates a presented session token against the share token
// being opened. Expiry and signature failures surface as auth errors.
func VerifySession(secret []byte, token, shareToken string) (proposal.ViewerSession, error) {
	claims, err := auth.ParseToken(secret, token)
	if err != nil {
		return proposal.ViewerSession{}, err
	}
	if claims.Role != auth.RoleViewer || claims.Sub != shareToken {
		return proposal.ViewerSession{}, ErrSessionMismatch
	}
	return proposal.ViewerSession{
		Token:      token,
		ShareToken: claims.Sub,
		ExpiresAt:  time.Unix(claims.Exp, 0),
	}, nil
}
