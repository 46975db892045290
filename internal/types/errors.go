package types

import (
	"errors"
	"fmt"
	"regexp"
)

// Error taxonomy shared across packages. Callers branch with errors.Is;
// the HTTP layer maps these to status codes.
var (
	// ErrValidation marks malformed specs, schemas, or requests.
	// Never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown workspace, entity, or import run.
	ErrNotFound = errors.New("not found")
)

var workspaceIDRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidateWorkspaceID enforces the workspace naming contract:
// lowercase alphanumeric plus underscore, 1 to 64 characters.
func ValidateWorkspaceID(wid string) error {
	if len(wid) == 0 || len(wid) > 64 {
		return fmt.Errorf("%w: workspace_id must be 1-64 characters, got %d", ErrValidation, len(wid))
	}
	if !workspaceIDRe.MatchString(wid) {
		return fmt.Errorf("%w: workspace_id %q must match ^[a-z0-9_]+$", ErrValidation, wid)
	}
	return nil
}
