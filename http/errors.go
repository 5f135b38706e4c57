package http

import (
	"fmt"

	"github.com/sagarc03/cellar"
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", cellar.ErrInvalidInput, fmt.Sprintf(format, args...))
}
