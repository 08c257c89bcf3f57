package registry

import (
	"net/http"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
)

var (
	ErrRegistryError        apperrors.Error = apperrors.New("error in processing registry request").SetStatusCode(http.StatusInternalServerError)
	ErrObjectNotFound       apperrors.Error = ErrRegistryError.New("object not found").SetStatusCode(http.StatusNotFound)
	ErrAttributeNotFound    apperrors.Error = ErrRegistryError.New("attribute not found").SetStatusCode(http.StatusNotFound)
	ErrValueNotFound        apperrors.Error = ErrRegistryError.New("enumeration value not found").SetStatusCode(http.StatusNotFound)
	ErrElementNotFound      apperrors.Error = ErrRegistryError.New("element not found").SetStatusCode(http.StatusNotFound)
	ErrLayoutNotFound       apperrors.Error = ErrRegistryError.New("layout not found").SetStatusCode(http.StatusNotFound)
	ErrWidgetNotFound       apperrors.Error = ErrRegistryError.New("zone widget not found").SetStatusCode(http.StatusNotFound)
	ErrAlreadyExists        apperrors.Error = ErrRegistryError.New("object already exists").SetStatusCode(http.StatusConflict)
	ErrInvalidRequest       apperrors.Error = ErrRegistryError.New("invalid request").SetExpandError(true).SetStatusCode(http.StatusBadRequest)
	ErrInvalidCodename      apperrors.Error = ErrInvalidRequest.New("invalid codename").SetStatusCode(http.StatusBadRequest)
	ErrInvalidKind          apperrors.Error = ErrInvalidRequest.New("invalid object kind").SetStatusCode(http.StatusBadRequest)
	ErrInvalidDataType      apperrors.Error = ErrInvalidRequest.New("invalid data type").SetStatusCode(http.StatusBadRequest)
	ErrInvalidZone          apperrors.Error = ErrInvalidRequest.New("invalid zone").SetStatusCode(http.StatusBadRequest)
	ErrInvalidWidgetKey     apperrors.Error = ErrInvalidRequest.New("invalid widget key").SetStatusCode(http.StatusBadRequest)
	ErrZoneNotAllowed       apperrors.Error = ErrInvalidRequest.New("widget not allowed in zone").SetStatusCode(http.StatusBadRequest)
	ErrValidationFailed     apperrors.Error = ErrInvalidRequest.New("payload validation failed").SetExpandError(true).SetStatusCode(http.StatusBadRequest)
	ErrConflict             apperrors.Error = ErrRegistryError.New("version conflict").SetExpandError(true).SetStatusCode(http.StatusConflict)
	ErrDeletionBlocked      apperrors.Error = ErrRegistryError.New("deletion blocked by references").SetExpandError(true).SetStatusCode(http.StatusConflict)
	ErrInvariantViolation   apperrors.Error = ErrRegistryError.New("invariant violation").SetExpandError(true).SetStatusCode(http.StatusConflict)
	ErrSchemaResolution     apperrors.Error = ErrRegistryError.New("unable to resolve tenant schema").SetStatusCode(http.StatusInternalServerError)
	ErrBranchNotFound       apperrors.Error = ErrSchemaResolution.New("branch not found").SetStatusCode(http.StatusNotFound)
	ErrNoDefaultBranch      apperrors.Error = ErrSchemaResolution.New("tenant has no default branch").SetStatusCode(http.StatusInternalServerError)
	ErrTenantNotFound       apperrors.Error = ErrRegistryError.New("tenant not found").SetStatusCode(http.StatusNotFound)
	ErrMissingUserID        apperrors.Error = ErrInvalidRequest.New("missing user ID").SetStatusCode(http.StatusBadRequest)
	ErrNotDataBearingObject apperrors.Error = ErrInvalidRequest.New("object kind does not carry elements").SetStatusCode(http.StatusBadRequest)
	ErrNotEnumerationObject apperrors.Error = ErrInvalidRequest.New("object is not an enumeration").SetStatusCode(http.StatusBadRequest)
)
