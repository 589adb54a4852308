package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common error conditions
var (
	// ErrBadRequest is returned when search parameters are malformed
	ErrBadRequest = errors.New("bad request")

	// ErrInvalidManifest is returned when a tooth.json document does not match the manifest schema
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrToothNotFound is returned when no catalog entry exists for a tooth or version
	ErrToothNotFound = errors.New("tooth not found")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrInconsistentCatalog marks more than one latest entry for the same repository
	ErrInconsistentCatalog = errors.New("inconsistent catalog")
)

// BadRequestError describes one violated search parameter constraint.
type BadRequestError struct {
	Param   string
	Value   string
	Message string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("parameter %s %s: %s", e.Param, e.Message, e.Value)
}

func (e *BadRequestError) Is(target error) bool {
	return target == ErrBadRequest
}

// NewBadRequestError creates a new BadRequestError
func NewBadRequestError(param, message, value string) *BadRequestError {
	return &BadRequestError{Param: param, Message: message, Value: value}
}

// ManifestValidationError carries every schema violation found in a manifest.
type ManifestValidationError struct {
	Violations []string
}

func (e *ManifestValidationError) Error() string {
	return "tooth.json is invalid: " + strings.Join(e.Violations, ", ")
}

func (e *ManifestValidationError) Is(target error) bool {
	return target == ErrInvalidManifest
}

// NewManifestValidationError creates a new ManifestValidationError
func NewManifestValidationError(violations []string) *ManifestValidationError {
	return &ManifestValidationError{Violations: append([]string(nil), violations...)}
}

// ToothNotFoundError represents a missing tooth or tooth version
type ToothNotFoundError struct {
	RepoPath string
	Version  string
}

func (e *ToothNotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("version '%s' of tooth '%s' not found", e.Version, e.RepoPath)
	}
	return fmt.Sprintf("tooth '%s' not found", e.RepoPath)
}

func (e *ToothNotFoundError) Is(target error) bool {
	return target == ErrToothNotFound
}

// NewToothNotFoundError creates a new ToothNotFoundError
func NewToothNotFoundError(repoPath string, version ...string) *ToothNotFoundError {
	err := &ToothNotFoundError{RepoPath: repoPath}
	if len(version) > 0 {
		err.Version = version[0]
	}
	return err
}

// JobNotFoundError represents a job not found error with context
type JobNotFoundError struct {
	JobID string
}

func (e *JobNotFoundError) Error() string {
	return fmt.Sprintf("job with ID '%s' not found", e.JobID)
}

func (e *JobNotFoundError) Is(target error) bool {
	return target == ErrJobNotFound
}

// NewJobNotFoundError creates a new JobNotFoundError
func NewJobNotFoundError(jobID string) *JobNotFoundError {
	return &JobNotFoundError{JobID: jobID}
}

// ConsistencyWarning reports repositories that appear more than once among
// latest-version rows. It is a diagnostic, never a request failure.
type ConsistencyWarning struct {
	RepoPaths []string
}

func (e *ConsistencyWarning) Error() string {
	return "found duplicate item: " + strings.Join(e.RepoPaths, ", ")
}

func (e *ConsistencyWarning) Is(target error) bool {
	return target == ErrInconsistentCatalog
}

// NewConsistencyWarning creates a new ConsistencyWarning
func NewConsistencyWarning(repoPaths []string) *ConsistencyWarning {
	return &ConsistencyWarning{RepoPaths: repoPaths}
}
