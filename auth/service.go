package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viant/mcp-protocol/authorization"
)

// DefaultNamespace is used when no bearer token is present or no usable
// claim can be extracted from it.
const DefaultNamespace = "default"

// Service derives the caller namespace from the JWT the MCP auth middleware
// places in context. Namespaces partition credential caches and device-login
// records per caller; the token is parsed unverified because verification is
// the middleware's job.
type Service struct {
	// claims are tried in order; the first non-empty string wins.
	claims []string
}

// New returns a Service that namespaces callers by "email", then "sub".
func New() *Service {
	return &Service{claims: []string{"email", "sub"}}
}

// Namespace resolves the caller namespace from ctx.
func (s *Service) Namespace(ctx context.Context) (string, error) {
	if s == nil {
		return DefaultNamespace, nil
	}
	raw := ctx.Value(authorization.TokenKey)
	if raw == nil {
		return DefaultNamespace, nil
	}
	var token string
	switch v := raw.(type) {
	case string:
		token = v
	case *authorization.Token:
		token = v.Token
	default:
		return "", fmt.Errorf("unsupported token type %T", raw)
	}
	ns := s.extract(token)
	if ns == "" {
		return DefaultNamespace, nil
	}
	return ns, nil
}

func (s *Service) extract(token string) string {
	var claims jwt.MapClaims
	if _, _, err := new(jwt.Parser).ParseUnverified(token, &claims); err != nil {
		return ""
	}
	for _, name := range s.claims {
		if v, _ := claims[name].(string); v != "" {
			return v
		}
	}
	return ""
}
