package tabula

import "errors"

// ErrNoDatasets is returned by Preload when no datasets are configured.
var ErrNoDatasets = errors.New("no datasets configured")
