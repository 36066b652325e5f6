package data

import (
	"errors"

	"github.com/target/mmk-reports-api/internal/core"
)

// Shared sentinel errors for data-layer repositories.
var (
	// ErrReportNotFound aliases the core sentinel so callers of either package can match it.
	ErrReportNotFound = core.ErrReportNotFound

	// ErrArtifactKeyRequired is returned when an artifact is written without a key.
	ErrArtifactKeyRequired = errors.New("artifact key is required")
)
