package http

import (
	"net/http"

	"github.com/aussiebroadwan/roomkey/pkg/httpx"
	"github.com/aussiebroadwan/roomkey/pkg/identitysdk"
	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
)

// KeyPublisher is anything that can publish its verification keys.
type KeyPublisher interface {
	JWKS() jwtx.JWKS
}

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify session tokens.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	identitysdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys KeyPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, identitysdk.JWKSResponse{Keys: keys.JWKS().Keys})
	}
}
