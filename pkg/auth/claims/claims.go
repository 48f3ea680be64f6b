// Package claims decodes token claims for local permission introspection.
//
// Decoding is best-effort and deliberately skips signature verification:
// the tokens inspected here were just issued to this client over TLS, and
// the decoded values drive display and scope reconciliation, not
// authorization decisions.
package claims

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/entralite/entralite/pkg/logger"
)

// Decode extracts the claim map from a JWT-shaped token without verifying
// its signature. Returns an error for anything that is not a three-part
// dot-separated token with a decodable payload.
func Decode(tokenString string) (jwt.MapClaims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("failed to extract claims")
	}

	return mapClaims, nil
}

// Permissions extracts permission claims from an access token.
//
// Entra tokens carry permissions in one of two shapes depending on the flow:
// application permissions appear as a `roles` array (client-credentials),
// delegated permissions as a space-joined `scp` string (interactive). Both
// are checked, plus the less common `scope` and `scopes` variants. A
// malformed token yields an empty list, never an error.
func Permissions(tokenString string) []string {
	mapClaims, err := Decode(tokenString)
	if err != nil {
		logger.Debugf("Could not decode token for permission extraction: %v", err)
		return []string{}
	}

	// Application permissions (roles claim) take priority.
	if roles := stringSlice(mapClaims["roles"]); len(roles) > 0 {
		return roles
	}

	// Delegated permissions: scp, then scope. Either may be a
	// space-joined string or an array.
	for _, key := range []string{"scp", "scope"} {
		if scopes := scopeList(mapClaims[key]); len(scopes) > 0 {
			return scopes
		}
	}

	// Fallback: some issuers use a scopes array.
	if scopes := stringSlice(mapClaims["scopes"]); len(scopes) > 0 {
		return scopes
	}

	return []string{}
}

// scopeList normalizes a scope claim that may be a space-joined string or an
// array of strings.
func scopeList(value any) []string {
	if s, ok := value.(string); ok {
		return strings.Fields(s)
	}
	return stringSlice(value)
}

// stringSlice converts a decoded JSON array into []string, dropping
// non-string elements.
func stringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
