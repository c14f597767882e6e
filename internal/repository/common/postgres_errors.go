package common

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/Taichi-iskw/clipquiz/internal/errors"
)

// HandlePostgreSQLError converts PostgreSQL-specific errors to appropriate AppError codes
func HandlePostgreSQLError(err error, operation string) *apperrors.AppError {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return apperrors.Wrap(err, apperrors.CodeInternal, operation)
	}

	switch pgErr.Code {
	case "23505": // UNIQUE_VIOLATION
		return handleUniqueViolation(pgErr)

	case "23503": // FOREIGN_KEY_VIOLATION
		return apperrors.Wrap(pgErr, apperrors.CodeDependency, operation+": referenced resource does not exist")

	case "23502": // NOT_NULL_VIOLATION
		return apperrors.Wrap(err, apperrors.CodeInvalidArg, operation+": required field is missing")

	case "23514": // CHECK_VIOLATION
		return handleCheckViolation(pgErr, operation)

	case "42P01": // UNDEFINED_TABLE
		return apperrors.Wrap(err, apperrors.CodeInternal, "database schema error: table not found (run `clipquiz migrate up`)")

	case "42703": // UNDEFINED_COLUMN
		return apperrors.Wrap(err, apperrors.CodeInternal, "database schema error: column not found")

	case "08000", "08003", "08006": // CONNECTION_EXCEPTION variants
		return apperrors.Wrap(err, apperrors.CodeInternal, "database connection error")

	case "53300": // TOO_MANY_CONNECTIONS
		return apperrors.Wrap(err, apperrors.CodeInternal, "database connection limit reached")

	default:
		return apperrors.Wrap(err, apperrors.CodeInternal, operation+" (PostgreSQL code: "+pgErr.Code+")")
	}
}

func handleUniqueViolation(pgErr *pgconn.PgError) *apperrors.AppError {
	switch {
	case strings.HasPrefix(pgErr.ConstraintName, "video_analyses"):
		return apperrors.Wrap(pgErr, apperrors.CodeConflict, "analysis for this video already exists")
	case strings.HasPrefix(pgErr.ConstraintName, "learning_records"):
		return apperrors.Wrap(pgErr, apperrors.CodeConflict, "learning record already exists")
	default:
		return apperrors.Wrap(pgErr, apperrors.CodeConflict, "resource already exists")
	}
}

func handleCheckViolation(pgErr *pgconn.PgError, operation string) *apperrors.AppError {
	switch pgErr.ConstraintName {
	case "video_analyses_provider_check":
		return apperrors.Wrap(pgErr, apperrors.CodeInvalidArg, "unknown AI provider")
	case "learning_records_points_check":
		return apperrors.Wrap(pgErr, apperrors.CodeInvalidArg, "points must not be negative")
	default:
		return apperrors.Wrap(pgErr, apperrors.CodeInvalidArg, operation+": data violates check constraint")
	}
}
