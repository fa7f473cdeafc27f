package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxTechnicianID contextKey = "technician_id"
	ctxRole         contextKey = "actor_role"
	ctxShopID       contextKey = "shop_id"
)

func TechnicianIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxTechnicianID)
}

func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

func ShopIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxShopID)
}

// TechnicianUUID returns the authenticated technician as a UUID, or uuid.Nil.
func TechnicianUUID(ctx context.Context) uuid.UUID {
	id, err := uuid.Parse(TechnicianIDFromContext(ctx))
	if err != nil {
		return uuid.Nil
	}
	return id
}

// ShopUUID returns the shop scope of the token, or nil when the token is not
// bound to a shop.
func ShopUUID(ctx context.Context) *uuid.UUID {
	id, err := uuid.Parse(ShopIDFromContext(ctx))
	if err != nil {
		return nil
	}
	return &id
}

// WithTechnicianID injects the technician identifier into the context.
func WithTechnicianID(ctx context.Context, technicianID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxTechnicianID, technicianID)
}

// WithShopID injects the shop identifier into the context for downstream handlers.
func WithShopID(ctx context.Context, shopID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxShopID, shopID)
}

// WithRole injects the actor role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
