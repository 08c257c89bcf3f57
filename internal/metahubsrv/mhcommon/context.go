// Package mhcommon provides context management and shared domain vocabulary
// for the metahub service: tenant/user request context, object kinds,
// attribute data types, and layout zones.
package mhcommon

import (
	"context"

	"github.com/metahub-io/metahub-server/internal/common/uuid"
)

// ctxKeyType represents the type for all context keys
type ctxKeyType string

const (
	ctxTenantIdKey       ctxKeyType = "MetahubTenantId"
	ctxUserIdKey         ctxKeyType = "MetahubUserId"
	ctxBranchOverrideKey ctxKeyType = "MetahubBranchOverride"
)

// SetTenantIdInContext sets the tenant ID in the provided context.
func SetTenantIdInContext(ctx context.Context, tenantId uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxTenantIdKey, tenantId)
}

// TenantIdFromContext retrieves the tenant ID from the provided context.
func TenantIdFromContext(ctx context.Context) uuid.UUID {
	if tenantId, ok := ctx.Value(ctxTenantIdKey).(uuid.UUID); ok {
		return tenantId
	}
	return uuid.Nil
}

// SetUserIdInContext sets the authenticated user ID in the provided context.
func SetUserIdInContext(ctx context.Context, userId uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxUserIdKey, userId)
}

// UserIdFromContext retrieves the authenticated user ID from the provided context.
func UserIdFromContext(ctx context.Context) uuid.UUID {
	if userId, ok := ctx.Value(ctxUserIdKey).(uuid.UUID); ok {
		return userId
	}
	return uuid.Nil
}

// SetBranchOverrideInContext pins schema resolution to an explicit branch.
// Service-internal use only; takes precedence over the user's active branch.
func SetBranchOverrideInContext(ctx context.Context, branchId uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxBranchOverrideKey, branchId)
}

// BranchOverrideFromContext retrieves the pinned branch ID, if any.
func BranchOverrideFromContext(ctx context.Context) uuid.UUID {
	if branchId, ok := ctx.Value(ctxBranchOverrideKey).(uuid.UUID); ok {
		return branchId
	}
	return uuid.Nil
}
