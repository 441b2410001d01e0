package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

const (
	// ActorIDHeader and ActorRoleHeader are set by the upstream auth layer
	ActorIDHeader   = "X-Actor-ID"
	ActorRoleHeader = "X-Actor-Role"

	// ActorKey is the key used to store the caller in the context
	ActorKey = "actor"
)

// Actor resolves the authenticated caller. Requests without a usable
// identity are rejected before reaching a handler.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ActorIDHeader)
		role := escrowdomain.UserRole(c.GetHeader(ActorRoleHeader))

		if id == "" || !role.Valid() {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid caller identity")
			return
		}
		// The scheduler identity is never accepted from the network
		if id == shared.SystemActorID {
			abortWithError(c, http.StatusForbidden, "FORBIDDEN", "reserved actor id")
			return
		}

		c.Set(ActorKey, escrowdomain.UserActor(id, role))
		c.Next()
	}
}

// GetActor returns the caller set by Actor. ok is false outside that middleware.
func GetActor(c *gin.Context) (escrowdomain.Actor, bool) {
	v, exists := c.Get(ActorKey)
	if !exists {
		return escrowdomain.Actor{}, false
	}
	actor, ok := v.(escrowdomain.Actor)
	return actor, ok
}

func abortWithError(c *gin.Context, status int, code, message string) {
	response := gin.H{"error": gin.H{"code": code, "message": message}}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(status, response)
}
