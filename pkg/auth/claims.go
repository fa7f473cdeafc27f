package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fastrepair/fastrepair-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	TechnicianID uuid.UUID
	ShopID       *uuid.UUID
	Role         enums.ActorRole
	JTI          string
}

func (p AccessTokenPayload) validate() error {
	if p.TechnicianID == uuid.Nil {
		return fmt.Errorf("technician id is required")
	}
	if !p.Role.IsValid() {
		return fmt.Errorf("invalid actor role %q", p.Role)
	}
	return nil
}

// AccessTokenClaims represents the typed JWT issued to console clients. The
// subject is the acting technician.
type AccessTokenClaims struct {
	ShopID *uuid.UUID      `json:"shop_id,omitempty"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// TechnicianID parses the subject claim.
func (c *AccessTokenClaims) TechnicianID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}
