package postgresql

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
	"github.com/metahub-io/metahub-server/internal/metahubsrv/db/dberror"
)

// Postgres error codes this layer cares about.
const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
	pgCodeCheckViolation      = "23514"
)

// mapPgError translates driver errors into the dberror taxonomy. Unique
// violations become typed conflicts carrying the violated constraint name, so
// a codename collision surfaces as a 409 instead of a generic 500.
func mapPgError(ctx context.Context, err error, msg string) apperrors.Error {
	if pgErr, ok := err.(*pgconn.PgError); ok {
		switch pgErr.Code {
		case pgCodeUniqueViolation:
			log.Ctx(ctx).Info().Str("constraint", pgErr.ConstraintName).Msg("unique constraint violated")
			return dberror.ErrUniqueViolation.Suffix(pgErr.ConstraintName)
		case pgCodeForeignKeyViolation:
			log.Ctx(ctx).Info().Str("constraint", pgErr.ConstraintName).Msg("foreign key violated")
			return dberror.ErrInvalidInput.Msg("referenced row does not exist")
		case pgCodeCheckViolation:
			log.Ctx(ctx).Info().Str("constraint", pgErr.ConstraintName).Msg("check constraint violated")
			return dberror.ErrValidationFailed.Suffix(pgErr.ConstraintName)
		}
	}
	log.Ctx(ctx).Error().Err(err).Msg(msg)
	return dberror.ErrDatabase.Err(err)
}
