package normalize

import (
	"fmt"

	"github.com/hbomb79/galleria/internal/report"
)

// Trouble is a conversion error annotated with the report kind it should be
// recorded as.
type Trouble struct {
	error
	kind report.ErrorKind
}

func newTrouble(kind report.ErrorKind, err error) *Trouble {
	return &Trouble{error: err, kind: kind}
}

func conversionTrouble(format string, args ...any) *Trouble {
	return newTrouble(report.ConversionFailure, fmt.Errorf(format, args...))
}

func (t *Trouble) Kind() report.ErrorKind { return t.kind }

func (t *Trouble) Unwrap() error { return t.error }
