package workload

import (
	"fmt"
	"strings"
)

// DuplicateNameError is returned when a descriptor name is already registered.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("workload %q is already registered", e.Name)
}

// NotFoundError is returned when no descriptor is registered under a name.
type NotFoundError struct {
	Name        string
	Suggestions []string // closest registered names, best first
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("workload %q not found", e.Name)
	}
	return fmt.Sprintf("workload %q not found (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}
