package db

import (
	"context"

	"github.com/jackc/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dbmanager"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/postgresql"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

// The four interfaces split the persistence surface by concern: tenant and
// branch bookkeeping in the public schema, per-tenant schema DDL, the system
// tables inside a tenant schema, and raw connection/scope management. They
// are initialized separately so each can be wrapped on its own.

type TenantManager interface {
	EnsurePublicTables(ctx context.Context) apperrors.Error

	// Tenant
	CreateTenant(ctx context.Context, tenant *models.Tenant) apperrors.Error
	GetTenant(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, apperrors.Error)
	GetTenantByName(ctx context.Context, name string) (*models.Tenant, apperrors.Error)
	DeleteTenant(ctx context.Context, tenantID uuid.UUID) apperrors.Error

	// Branch
	CreateBranch(ctx context.Context, branch *models.Branch) apperrors.Error
	GetBranch(ctx context.Context, branchID uuid.UUID) (*models.Branch, apperrors.Error)
	GetDefaultBranch(ctx context.Context, tenantID uuid.UUID) (*models.Branch, apperrors.Error)
	ListBranches(ctx context.Context, tenantID uuid.UUID) ([]*models.Branch, apperrors.Error)
	SetDefaultBranch(ctx context.Context, tenantID, branchID uuid.UUID) apperrors.Error

	// Membership
	GetMembership(ctx context.Context, tenantID, userID uuid.UUID) (*models.TenantMembership, apperrors.Error)
	SetActiveBranch(ctx context.Context, tenantID, userID, branchID uuid.UUID) apperrors.Error
}

type SchemaManager interface {
	AcquireTenantLock(ctx context.Context, tenantID uuid.UUID) apperrors.Error
	ReleaseTenantLock(ctx context.Context, tenantID uuid.UUID)
	CreateSchemaIfNotExists(ctx context.Context, schema string) apperrors.Error
	SchemaExists(ctx context.Context, schema string) (bool, apperrors.Error)
	DropSchema(ctx context.Context, schema string) apperrors.Error
	EnsureEnumDefaultIndex(ctx context.Context, schema string) apperrors.Error
}

type RegistryManager interface {
	// Object
	CreateObject(ctx context.Context, schema string, obj *models.Object) apperrors.Error
	GetObject(ctx context.Context, schema string, objectID uuid.UUID) (*models.Object, apperrors.Error)
	GetObjectByCodename(ctx context.Context, schema string, kind mhcommon.ObjectKind, codename string) (*models.Object, apperrors.Error)
	ListObjects(ctx context.Context, schema string, kind mhcommon.ObjectKind) ([]*models.Object, apperrors.Error)
	ListObjectTrash(ctx context.Context, schema string) ([]*models.Object, apperrors.Error)
	UpdateObject(ctx context.Context, schema string, objectID uuid.UUID, expectedVersion int, patch *postgresql.Patch) (int, apperrors.Error)
	SoftDeleteObject(ctx context.Context, schema string, objectID uuid.UUID) apperrors.Error
	RestoreObject(ctx context.Context, schema string, objectID uuid.UUID) apperrors.Error
	PermanentDeleteObject(ctx context.Context, schema string, objectID uuid.UUID) apperrors.Error

	// Attribute
	CreateAttribute(ctx context.Context, schema string, attr *models.Attribute) apperrors.Error
	GetAttribute(ctx context.Context, schema string, attributeID uuid.UUID) (*models.Attribute, apperrors.Error)
	ListAttributes(ctx context.Context, schema string, objectID uuid.UUID) ([]*models.Attribute, apperrors.Error)
	UpdateAttribute(ctx context.Context, schema string, attributeID uuid.UUID, expectedVersion int, patch *postgresql.Patch) (int, apperrors.Error)
	SoftDeleteAttribute(ctx context.Context, schema string, attributeID uuid.UUID) apperrors.Error
	RestoreAttribute(ctx context.Context, schema string, attributeID uuid.UUID) apperrors.Error
	MoveAttribute(ctx context.Context, schema string, objectID, attributeID uuid.UUID, direction mhcommon.MoveDirection) apperrors.Error
	SetDisplayAttribute(ctx context.Context, schema string, objectID, attributeID uuid.UUID) apperrors.Error
	ClearDisplayAttribute(ctx context.Context, schema string, objectID, attributeID uuid.UUID) apperrors.Error

	// Enumeration value
	ListEnumValues(ctx context.Context, schema string, objectID uuid.UUID) ([]*models.EnumValue, apperrors.Error)
	GetEnumValue(ctx context.Context, schema string, valueID uuid.UUID) (*models.EnumValue, apperrors.Error)
	CreateEnumValue(ctx context.Context, schema string, value *models.EnumValue) apperrors.Error
	UpdateEnumValue(ctx context.Context, schema string, objectID, valueID uuid.UUID, expectedVersion int, patch *postgresql.Patch) (int, apperrors.Error)
	MoveEnumValue(ctx context.Context, schema string, objectID, valueID uuid.UUID, direction mhcommon.MoveDirection) apperrors.Error
	SoftDeleteEnumValue(ctx context.Context, schema string, valueID uuid.UUID) apperrors.Error
	RestoreEnumValue(ctx context.Context, schema string, valueID uuid.UUID) apperrors.Error
	PermanentDeleteEnumValue(ctx context.Context, schema string, valueID uuid.UUID) apperrors.Error

	// Element
	CreateElement(ctx context.Context, schema string, element *models.Element) apperrors.Error
	GetElement(ctx context.Context, schema string, elementID uuid.UUID) (*models.Element, apperrors.Error)
	ListElements(ctx context.Context, schema string, objectID uuid.UUID) ([]*models.Element, apperrors.Error)
	UpdateElement(ctx context.Context, schema string, elementID uuid.UUID, expectedVersion int, patch *postgresql.Patch) (int, apperrors.Error)
	MoveElement(ctx context.Context, schema string, objectID, elementID uuid.UUID, direction mhcommon.MoveDirection) apperrors.Error
	SoftDeleteElement(ctx context.Context, schema string, elementID uuid.UUID) apperrors.Error
	RestoreElement(ctx context.Context, schema string, elementID uuid.UUID) apperrors.Error
	PermanentDeleteElement(ctx context.Context, schema string, elementID uuid.UUID) apperrors.Error

	// Setting
	GetSetting(ctx context.Context, schema, key string) (*models.Setting, apperrors.Error)
	ListSettings(ctx context.Context, schema string) ([]*models.Setting, apperrors.Error)
	SetSetting(ctx context.Context, schema, key string, value pgtype.JSONB) (*models.Setting, apperrors.Error)
	DeleteSetting(ctx context.Context, schema, key string) apperrors.Error

	// Layout
	CreateLayout(ctx context.Context, schema string, layout *models.Layout) apperrors.Error
	GetLayout(ctx context.Context, schema string, layoutID uuid.UUID) (*models.Layout, apperrors.Error)
	GetDefaultLayout(ctx context.Context, schema string) (*models.Layout, apperrors.Error)
	ListLayouts(ctx context.Context, schema string) ([]*models.Layout, apperrors.Error)
	UpdateLayout(ctx context.Context, schema string, layoutID uuid.UUID, expectedVersion int, patch *postgresql.Patch) (int, apperrors.Error)
	DeleteLayout(ctx context.Context, schema string, layoutID uuid.UUID) apperrors.Error
	SeedDefaultLayout(ctx context.Context, schema string, layout *models.Layout, widgets []*models.ZoneWidget) apperrors.Error

	// Zone widget
	ListZoneWidgets(ctx context.Context, schema string, layoutID uuid.UUID) ([]*models.ZoneWidget, apperrors.Error)
	AssignZoneWidget(ctx context.Context, schema string, widget *models.ZoneWidget, multiInstance bool) apperrors.Error
	MoveZoneWidget(ctx context.Context, schema string, layoutID, widgetID uuid.UUID, targetZone string, targetIndex int) apperrors.Error
	UpdateZoneWidget(ctx context.Context, schema string, layoutID, widgetID uuid.UUID, expectedVersion int, patch *postgresql.Patch) (int, apperrors.Error)
	RemoveZoneWidget(ctx context.Context, schema string, layoutID, widgetID uuid.UUID) apperrors.Error
	SeedLayoutWidgets(ctx context.Context, schema string, layoutID uuid.UUID, widgets []*models.ZoneWidget) apperrors.Error

	// Version primitives
	UpdateWithVersionCheck(ctx context.Context, schema, table, idCol string, id uuid.UUID, entityType string, expectedVersion int, patch *postgresql.Patch) (int, apperrors.Error)
	IncrementVersion(ctx context.Context, schema, table, idCol string, id uuid.UUID, patch *postgresql.Patch) apperrors.Error

	// Reference blockers
	FindAttributesReferencing(ctx context.Context, schema string, targetID uuid.UUID, kind mhcommon.ObjectKind) (dberror.BlockerList, apperrors.Error)
	FindAttributesUsingEnumDefault(ctx context.Context, schema string, enumObjectID, valueID uuid.UUID) (dberror.BlockerList, apperrors.Error)
	FindElementsUsingEnumValue(ctx context.Context, schema string, enumObjectID, valueID uuid.UUID) (dberror.BlockerList, apperrors.Error)
}

type ConnectionManager interface {
	// Scope Management
	AddScopes(ctx context.Context, scopes map[string]string)
	DropScopes(ctx context.Context, scopes []string) error
	AddScope(ctx context.Context, scope, value string)
	DropScope(ctx context.Context, scope string) error
	DropAllScopes(ctx context.Context) error

	// Close the connection to the database.
	Close(ctx context.Context)
}

type DB_ interface {
	TenantManager
	SchemaManager
	RegistryManager
	ConnectionManager
}

const (
	Scope_TenantId string = "metahub.curr_tenantid"
	Scope_UserId   string = "metahub.curr_userid"
)

var configuredScopes = []string{
	Scope_TenantId,
	Scope_UserId,
}

var pool dbmanager.ScopedDb

func Init() error {
	ctx := log.Logger.WithContext(context.Background())
	pg := dbmanager.NewScopedDb(ctx, "postgresql", configuredScopes)
	if pg == nil {
		return dberror.ErrDatabase.Msg("unable to create db pool")
	}
	pool = pg
	return nil
}

func Conn(ctx context.Context) dbmanager.ScopedConn {
	if pool != nil {
		conn, err := pool.Conn(ctx)
		if err == nil {
			return conn
		}
		log.Ctx(ctx).Error().Err(err).Msg("unable to get db connection")
	}
	return nil
}

type ctxDbKeyType string

const ctxDbKey ctxDbKeyType = "MetahubDb"

func ConnCtx(ctx context.Context) context.Context {
	conn := Conn(ctx)
	return context.WithValue(ctx, ctxDbKey, conn)
}

type metahubDb struct {
	TenantManager
	SchemaManager
	RegistryManager
	ConnectionManager
}

func DB(ctx context.Context) DB_ {
	if conn, ok := ctx.Value(ctxDbKey).(dbmanager.ScopedConn); ok {
		tm, sm, rm, cm := postgresql.NewMetahubDb(conn)
		return &metahubDb{
			TenantManager:     tm,
			SchemaManager:     sm,
			RegistryManager:   rm,
			ConnectionManager: cm,
		}
	}
	log.Ctx(ctx).Error().Msg("unable to get db connection from context")
	return nil
}
