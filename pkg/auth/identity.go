package auth

import (
	"context"

	"github.com/entralite/entralite/pkg/auth/claims"
	"github.com/entralite/entralite/pkg/graph"
	"github.com/entralite/entralite/pkg/logger"
)

// reconstructIdentity builds the session identity after a direct token
// exchange. Three tiers, best effort: identity-token claims, then a Graph
// profile lookup with the access token, then a synthesized placeholder. The
// sign-in itself never fails on this path.
func reconstructIdentity(ctx context.Context, idToken, accessToken string, profiles graph.ProfileFetcher) *Identity {
	if identity := identityFromIDToken(idToken); identity != nil {
		return identity
	}

	if profiles != nil {
		profile, err := profiles.Me(ctx, accessToken)
		if err == nil {
			username := profile.UserPrincipalName
			if username == "" {
				username = profile.Mail
			}
			return &Identity{
				AccountID:   profile.ID,
				Username:    username,
				DisplayName: profile.DisplayName,
			}
		}
		logger.Warnf("Profile lookup failed, synthesizing placeholder identity: %v", err)
	}

	return &Identity{
		AccountID:   "unknown",
		Username:    "user@unknown",
		DisplayName: "Authenticated User",
		Placeholder: true,
	}
}

// identityFromIDToken decodes the identity token without verification and
// extracts the profile claims. Returns nil when the token is absent,
// undecodable, or carries no usable subject.
func identityFromIDToken(idToken string) *Identity {
	if idToken == "" {
		return nil
	}

	claimMap, err := claims.Decode(idToken)
	if err != nil {
		logger.Debugf("Identity token undecodable: %v", err)
		return nil
	}

	identity := &Identity{
		AccountID:   stringClaim(claimMap, "oid"),
		TenantID:    stringClaim(claimMap, "tid"),
		DisplayName: stringClaim(claimMap, "name"),
	}
	for _, key := range []string{"preferred_username", "upn", "email"} {
		if v := stringClaim(claimMap, key); v != "" {
			identity.Username = v
			break
		}
	}

	if identity.AccountID == "" && identity.Username == "" {
		return nil
	}
	return identity
}

func stringClaim(claimMap map[string]any, key string) string {
	if v, ok := claimMap[key].(string); ok {
		return v
	}
	return ""
}
