package config

import "errors"

var (
	// ErrConfigFileNotFound indicates that the config file was not found.
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFormat indicates that the config file has invalid JSON.
	ErrInvalidConfigFormat = errors.New("invalid configuration file format")

	// ErrMissingBaseURL indicates the developer-backend base URL is unset.
	ErrMissingBaseURL = errors.New("baseUrl is required for the developer backend")

	// ErrMissingVertexProject indicates vertex.project is unset while the
	// vertex backend is selected.
	ErrMissingVertexProject = errors.New("vertex.project is required for the vertex backend")

	// ErrMissingVertexLocation indicates vertex.location is unset while the
	// vertex backend is selected.
	ErrMissingVertexLocation = errors.New("vertex.location is required for the vertex backend")

	// ErrInvalidBackend indicates backend is neither "developer" nor "vertex".
	ErrInvalidBackend = errors.New(`backend must be "developer" or "vertex"`)

	// ErrInvalidAuthMode indicates authMode is not one of the three allowed values.
	ErrInvalidAuthMode = errors.New(`authMode must be "api_key_only", "oauth_only", or "auto"`)

	// ErrInvalidApprovalPolicy indicates budget.approvalPolicy is not one of
	// the three allowed values.
	ErrInvalidApprovalPolicy = errors.New(`budget.approvalPolicy must be "never", "prompt", or "auto"`)
)
