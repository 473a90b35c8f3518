package errcode

import "net/http"

// Module codes owned by this repository
const (
	ModuleCommon  = 1
	ModuleRedis   = 21
	ModuleLimiter = 22
)

var (
	// ErrValidation parameter/config validation failure, carries "fields" data
	ErrValidation = Register(New(ModuleCommon, 1010, "common", "error.common.validation_failed",
		"validation failed", http.StatusBadRequest))

	// ErrInternal unexpected failure
	ErrInternal = Register(New(ModuleCommon, 1000, "common", "error.common.internal",
		"internal server error", http.StatusInternalServerError))
)
