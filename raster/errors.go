package raster

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by readers when the file of a band does not exist.
var ErrNotFound = errors.New("band file not found")

// DataError reports a pixel buffer that cannot be used as decoded.
type DataError struct {
	Date   Date
	Band   Band
	Reason string
}

func (e *DataError) Error() string {
	if e.Band == 0 {
		return fmt.Sprintf("data error on %v: %s", e.Date, e.Reason)
	}
	return fmt.Sprintf("data error on %v band %v: %s", e.Date, e.Band, e.Reason)
}
