package registry

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgtype"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/common/uuid"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/models"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/mhcommon"
)

var validate = validator.New()

func validateRequest(req any) apperrors.Error {
	if err := validate.Struct(req); err != nil {
		return ErrInvalidRequest.Err(err)
	}
	return nil
}

// jsonbFrom wraps raw JSON for a jsonb column, defaulting to an empty
// object.
func jsonbFrom(raw json.RawMessage) pgtype.JSONB {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	return pgtype.JSONB{Bytes: raw, Status: pgtype.Present}
}

func rawFrom(j pgtype.JSONB) json.RawMessage {
	if j.Status != pgtype.Present {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(j.Bytes)
}

// AuditDTO is the caller-visible slice of the row state.
type AuditDTO struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int       `json:"version"`
	Published bool      `json:"published"`
	Archived  bool      `json:"archived"`
	Deleted   bool      `json:"deleted"`
}

func auditFrom(s models.RowState) AuditDTO {
	return AuditDTO{
		CreatedAt: s.Platform.CreatedAt,
		UpdatedAt: s.Platform.UpdatedAt,
		Version:   s.Platform.Version,
		Published: s.Metahub.Published,
		Archived:  s.Metahub.Archived,
		Deleted:   s.Metahub.Deleted,
	}
}

type ObjectDTO struct {
	ObjectID     uuid.UUID           `json:"objectId"`
	Kind         mhcommon.ObjectKind `json:"kind"`
	Codename     string              `json:"codename"`
	TableName    string              `json:"tableName,omitempty"`
	Presentation json.RawMessage     `json:"presentation"`
	Config       json.RawMessage     `json:"config"`
	Audit        AuditDTO            `json:"audit"`
}

func objectDTO(m *models.Object) *ObjectDTO {
	return &ObjectDTO{
		ObjectID:     m.ObjectID,
		Kind:         m.Kind,
		Codename:     m.Codename,
		TableName:    m.TableName.String,
		Presentation: rawFrom(m.Presentation),
		Config:       rawFrom(m.Config),
		Audit:        auditFrom(m.State),
	}
}

type AttributeDTO struct {
	AttributeID       uuid.UUID         `json:"attributeId"`
	ObjectID          uuid.UUID         `json:"objectId"`
	Codename          string            `json:"codename"`
	DataType          mhcommon.DataType `json:"dataType"`
	IsRequired        bool              `json:"isRequired"`
	IsDisplay         bool              `json:"isDisplay"`
	TargetObjectID    *uuid.UUID        `json:"targetObjectId,omitempty"`
	TargetObjectKind  string            `json:"targetObjectKind,omitempty"`
	ParentAttributeID *uuid.UUID        `json:"parentAttributeId,omitempty"`
	SortOrder         int               `json:"sortOrder"`
	ValidationRules   json.RawMessage   `json:"validationRules"`
	UIConfig          json.RawMessage   `json:"uiConfig"`
	Audit             AuditDTO          `json:"audit"`
}

func attributeDTO(m *models.Attribute) *AttributeDTO {
	d := &AttributeDTO{
		AttributeID:      m.AttributeID,
		ObjectID:         m.ObjectID,
		Codename:         m.Codename,
		DataType:         m.DataType,
		IsRequired:       m.IsRequired,
		IsDisplay:        m.IsDisplay,
		TargetObjectKind: m.TargetObjectKind.String,
		SortOrder:        m.SortOrder,
		ValidationRules:  rawFrom(m.ValidationRules),
		UIConfig:         rawFrom(m.UIConfig),
		Audit:            auditFrom(m.State),
	}
	if m.TargetObjectID.Valid {
		id := m.TargetObjectID.UUID
		d.TargetObjectID = &id
	}
	if m.ParentAttributeID.Valid {
		id := m.ParentAttributeID.UUID
		d.ParentAttributeID = &id
	}
	return d
}

type EnumValueDTO struct {
	ValueID     uuid.UUID       `json:"valueId"`
	ObjectID    uuid.UUID       `json:"objectId"`
	Codename    string          `json:"codename"`
	Name        json.RawMessage `json:"name"`
	Description json.RawMessage `json:"description"`
	SortOrder   int             `json:"sortOrder"`
	IsDefault   bool            `json:"isDefault"`
	Audit       AuditDTO        `json:"audit"`
}

func enumValueDTO(m *models.EnumValue) *EnumValueDTO {
	return &EnumValueDTO{
		ValueID:     m.ValueID,
		ObjectID:    m.ObjectID,
		Codename:    m.Codename,
		Name:        rawFrom(m.Name),
		Description: rawFrom(m.Description),
		SortOrder:   m.SortOrder,
		IsDefault:   m.IsDefault,
		Audit:       auditFrom(m.State),
	}
}

type ElementDTO struct {
	ElementID uuid.UUID       `json:"elementId"`
	ObjectID  uuid.UUID       `json:"objectId"`
	Data      json.RawMessage `json:"data"`
	SortOrder int             `json:"sortOrder"`
	OwnerID   *uuid.UUID      `json:"ownerId,omitempty"`
	Audit     AuditDTO        `json:"audit"`
}

func elementDTO(m *models.Element) *ElementDTO {
	d := &ElementDTO{
		ElementID: m.ElementID,
		ObjectID:  m.ObjectID,
		Data:      rawFrom(m.Data),
		SortOrder: m.SortOrder,
		Audit:     auditFrom(m.State),
	}
	if m.OwnerID.Valid {
		id := m.OwnerID.UUID
		d.OwnerID = &id
	}
	return d
}

type TenantDTO struct {
	TenantID  uuid.UUID       `json:"tenantId"`
	Name      string          `json:"name"`
	Info      json.RawMessage `json:"info"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func tenantDTO(m *models.Tenant) *TenantDTO {
	return &TenantDTO{
		TenantID:  m.TenantID,
		Name:      m.Name,
		Info:      rawFrom(m.Info),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

type BranchDTO struct {
	BranchID  uuid.UUID `json:"branchId"`
	TenantID  uuid.UUID `json:"tenantId"`
	Name      string    `json:"name"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func branchDTO(m *models.Branch) *BranchDTO {
	return &BranchDTO{
		BranchID:  m.BranchID,
		TenantID:  m.TenantID,
		Name:      m.Name,
		IsDefault: m.IsDefault,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

type SettingDTO struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	Audit AuditDTO        `json:"audit"`
}

func settingDTO(m *models.Setting) *SettingDTO {
	return &SettingDTO{Key: m.Key, Value: rawFrom(m.Value), Audit: auditFrom(m.State)}
}

type LayoutDTO struct {
	LayoutID    uuid.UUID       `json:"layoutId"`
	TemplateKey string          `json:"templateKey"`
	Name        json.RawMessage `json:"name"`
	Description json.RawMessage `json:"description"`
	Config      json.RawMessage `json:"config"`
	IsActive    bool            `json:"isActive"`
	IsDefault   bool            `json:"isDefault"`
	SortOrder   int             `json:"sortOrder"`
	Audit       AuditDTO        `json:"audit"`
}

func layoutDTO(m *models.Layout) *LayoutDTO {
	return &LayoutDTO{
		LayoutID:    m.LayoutID,
		TemplateKey: m.TemplateKey,
		Name:        rawFrom(m.Name),
		Description: rawFrom(m.Description),
		Config:      rawFrom(m.Config),
		IsActive:    m.IsActive,
		IsDefault:   m.IsDefault,
		SortOrder:   m.SortOrder,
		Audit:       auditFrom(m.State),
	}
}

type ZoneWidgetDTO struct {
	WidgetID  uuid.UUID       `json:"widgetId"`
	LayoutID  uuid.UUID       `json:"layoutId"`
	WidgetKey string          `json:"widgetKey"`
	Zone      string          `json:"zone"`
	SortOrder int             `json:"sortOrder"`
	Config    json.RawMessage `json:"config"`
	Audit     AuditDTO        `json:"audit"`
}

func zoneWidgetDTO(m *models.ZoneWidget) *ZoneWidgetDTO {
	return &ZoneWidgetDTO{
		WidgetID:  m.WidgetID,
		LayoutID:  m.LayoutID,
		WidgetKey: m.WidgetKey,
		Zone:      m.Zone,
		SortOrder: m.SortOrder,
		Config:    rawFrom(m.Config),
		Audit:     auditFrom(m.State),
	}
}

// Request shapes. The transport layer parses into these; validation tags
// cover structure, registries cover semantics.

type CreateObjectRequest struct {
	Kind         mhcommon.ObjectKind `json:"kind" validate:"required"`
	Codename     string              `json:"codename" validate:"required,max=64"`
	TableName    string              `json:"tableName,omitempty" validate:"omitempty,max=64"`
	Presentation json.RawMessage     `json:"presentation,omitempty"`
	Config       json.RawMessage     `json:"config,omitempty"`
}

type UpdateObjectRequest struct {
	Version      int             `json:"version" validate:"min=1"`
	Codename     *string         `json:"codename,omitempty" validate:"omitempty,max=64"`
	Presentation json.RawMessage `json:"presentation,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
}

type CreateAttributeRequest struct {
	ObjectID          uuid.UUID         `json:"objectId" validate:"required"`
	Codename          string            `json:"codename" validate:"required,max=64"`
	DataType          mhcommon.DataType `json:"dataType" validate:"required"`
	IsRequired        bool              `json:"isRequired"`
	IsDisplay         bool              `json:"isDisplay"`
	TargetObjectID    *uuid.UUID        `json:"targetObjectId,omitempty"`
	ParentAttributeID *uuid.UUID        `json:"parentAttributeId,omitempty"`
	ValidationRules   json.RawMessage   `json:"validationRules,omitempty"`
	UIConfig          json.RawMessage   `json:"uiConfig,omitempty"`
}

type UpdateAttributeRequest struct {
	Version         int             `json:"version" validate:"min=1"`
	Codename        *string         `json:"codename,omitempty" validate:"omitempty,max=64"`
	IsRequired      *bool           `json:"isRequired,omitempty"`
	ValidationRules json.RawMessage `json:"validationRules,omitempty"`
	UIConfig        json.RawMessage `json:"uiConfig,omitempty"`
}

type CreateEnumValueRequest struct {
	ObjectID    uuid.UUID       `json:"objectId" validate:"required"`
	Codename    string          `json:"codename" validate:"required,max=64"`
	Name        json.RawMessage `json:"name,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	SortOrder   int             `json:"sortOrder,omitempty" validate:"min=0"`
	IsDefault   bool            `json:"isDefault"`
}

type UpdateEnumValueRequest struct {
	Version     int             `json:"version" validate:"min=1"`
	Codename    *string         `json:"codename,omitempty" validate:"omitempty,max=64"`
	Name        json.RawMessage `json:"name,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	SortOrder   *int            `json:"sortOrder,omitempty" validate:"omitempty,min=1"`
	IsDefault   *bool           `json:"isDefault,omitempty"`
}

type CreateElementRequest struct {
	ObjectID uuid.UUID       `json:"objectId" validate:"required"`
	Data     json.RawMessage `json:"data" validate:"required"`
	OwnerID  *uuid.UUID      `json:"ownerId,omitempty"`
}

type UpdateElementRequest struct {
	Version int             `json:"version" validate:"min=1"`
	Data    json.RawMessage `json:"data" validate:"required"`
}

type CreateLayoutRequest struct {
	TemplateKey string          `json:"templateKey" validate:"required,max=64"`
	Name        json.RawMessage `json:"name,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	IsActive    bool            `json:"isActive"`
	IsDefault   bool            `json:"isDefault"`
}

type UpdateLayoutRequest struct {
	Version     int             `json:"version" validate:"min=1"`
	Name        json.RawMessage `json:"name,omitempty"`
	Description json.RawMessage `json:"description,omitempty"`
	IsActive    *bool           `json:"isActive,omitempty"`
	IsDefault   *bool           `json:"isDefault,omitempty"`
}

type AssignZoneWidgetRequest struct {
	LayoutID  uuid.UUID       `json:"layoutId" validate:"required"`
	WidgetKey string          `json:"widgetKey" validate:"required,max=64"`
	Zone      string          `json:"zone" validate:"required,max=64"`
	Config    json.RawMessage `json:"config,omitempty"`
}

type MoveZoneWidgetRequest struct {
	LayoutID    uuid.UUID `json:"layoutId" validate:"required"`
	WidgetID    uuid.UUID `json:"widgetId" validate:"required"`
	TargetZone  string    `json:"targetZone" validate:"required,max=64"`
	TargetIndex int       `json:"targetIndex" validate:"min=0"`
}

type UpdateZoneWidgetRequest struct {
	Version int             `json:"version" validate:"min=1"`
	Config  json.RawMessage `json:"config,omitempty"`
}
