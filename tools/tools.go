//go:build tools

package tools

// This file tracks tool dependencies for reproducible builds.
// oapi-codegen validates api/openapi.yaml; goose applies migrations by hand:
//
//	goose -dir internal/adapters/postgres/migrations postgres "$ANTICLONE_DATABASE_URL" status
import (
	_ "github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen"
	_ "github.com/pressly/goose/v3/cmd/goose"
)
