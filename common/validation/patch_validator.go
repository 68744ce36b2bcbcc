package validation

import (
	"fmt"
)

// editablePaths are the box document fields a patch may target. Anything
// else — the id, byte counters, timestamps — is off limits regardless of
// the operation.
var editablePaths = map[string]bool{
	"/capacity_bytes":          true,
	"/high_water_mark_percent": true,
	"/priority":                true,
	"/region":                  true,
	"/is_active":               true,
	"/is_full":                 true,
	"/is_readonly":             true,
	"/endpoint":                true,
	"/access_key":              true,
	"/secret_key":              true,
	"/bucket":                  true,
	"/use_ssl":                 true,
}

// PatchValidator validates JSON Patch operations against a storage box
// document before they are applied. Only structure and paths are checked
// here; the patched document is validated as a whole afterwards.
type PatchValidator struct{}

// NewPatchValidator creates a new patch validator
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{}
}

// ValidateOperations validates all patch operations
func (v *PatchValidator) ValidateOperations(operations []map[string]interface{}) error {
	if len(operations) == 0 {
		return fmt.Errorf("patch contains no operations")
	}

	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}
	}

	return nil
}

// validateOperation validates a single operation
func (v *PatchValidator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'op' field", index)
	}

	path, ok := op["path"].(string)
	if !ok {
		return fmt.Errorf("operation %d: missing or invalid 'path' field", index)
	}

	if !editablePaths[path] {
		return fmt.Errorf("operation %d: path %q is not an editable box field", index, path)
	}

	switch opType {
	case "add", "replace", "test":
		if _, ok := op["value"]; !ok {
			return fmt.Errorf("operation %d: 'value' required for %s operation", index, opType)
		}

	case "remove":
		// Remove carries no value. A remove that empties a required field
		// is caught by the document validation after application.
		return nil

	default:
		return fmt.Errorf("operation %d: unsupported operation type: %s", index, opType)
	}

	return nil
}
