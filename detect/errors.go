package detect

import (
	"fmt"

	"github.com/nci/gapfill/raster"
)

// MissingBandError is returned when a band required by the parameters is absent.
type MissingBandError struct {
	Date raster.Date
	Band raster.Band
}

func (e *MissingBandError) Error() string {
	return fmt.Sprintf("missing band %v for %v", e.Band, e.Date)
}
