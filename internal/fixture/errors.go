package fixture

import "fmt"

// StartError is returned when a fixture's resource fails to start. The
// fixture stays down and its reference count is unchanged.
type StartError struct {
	Name string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("fixture %q failed to start: %v", e.Name, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned for fixture names that were never registered.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fixture %q is not registered", e.Name)
}
