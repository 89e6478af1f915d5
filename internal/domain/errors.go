package domain

import (
	"errors"
	"fmt"
)

// Error kinds returned by the adapter. Callers classify with errors.Is.
var (
	// ErrConfig marks a missing or malformed input: run_info.xml, a FEWS
	// export, the units lookup or the control file itself.
	ErrConfig = errors.New("configuration error")

	// ErrParse marks a malformed SWMM report.
	ErrParse = errors.New("report parse error")

	// ErrEmptyReport is returned when a report holds no time-series tables.
	ErrEmptyReport = fmt.Errorf("%w: no time series tables found", ErrParse)

	// ErrDuplicate marks two curves or rule series sharing an identity.
	ErrDuplicate = errors.New("duplicate identifier")

	// ErrModel marks a failed model run or a report containing model errors.
	ErrModel = errors.New("model error")
)
