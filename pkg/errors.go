package pkg

import "errors"

// Error kinds shared by the repository and the feed pipeline.  Callers wrap
// them with context and test with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrGeneration      = errors.New("feed generation failed")
	ErrSchemaViolation = errors.New("feed schema violation")
	ErrPersistence     = errors.New("feed persistence failed")
)
