package models

import (
	"errors"
	"fmt"
)

// ErrMissingColumn marks a structural input error: a required column is absent
var ErrMissingColumn = errors.New("missing column")

// MissingColumnError names the table and the column that could not be found
type MissingColumnError struct {
	Source string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: %s %q", e.Source, ErrMissingColumn, e.Column)
}

// Unwrap lets errors.Is match ErrMissingColumn
func (e *MissingColumnError) Unwrap() error {
	return ErrMissingColumn
}
