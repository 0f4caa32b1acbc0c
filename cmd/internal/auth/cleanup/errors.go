package cleanup

import "errors"

// ErrConfig is returned for invalid cleanup configuration.
var ErrConfig = errors.New("invalid cleanup config")
