package ids

import "github.com/segmentio/ksuid"

// New returns a sortable unique identifier for jobs and temporary objects.
func New() string {
	return ksuid.New().String()
}
