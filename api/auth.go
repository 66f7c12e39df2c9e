package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// jwtAuth authenticates the restricted approve_proposal route with a
// bearer JWT whose subject claim must equal the configured secondary-DAO
// principal. This is the HTTP analogue of a canister's ambient
// caller-principal check.
type jwtAuth struct {
	signingKey            []byte
	secondaryDAOPrincipal string
}

func newJWTAuth(signingKey, secondaryDAOPrincipal string) *jwtAuth {
	return &jwtAuth{signingKey: []byte(signingKey), secondaryDAOPrincipal: secondaryDAOPrincipal}
}

func (a *jwtAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims := jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return a.signingKey, nil
		})
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		if claims.Subject != a.secondaryDAOPrincipal {
			writeError(w, http.StatusForbidden, "caller is not the secondary-DAO principal")
			return
		}
		next.ServeHTTP(w, r)
	})
}
