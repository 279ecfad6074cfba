package export

import "errors"

// ErrUnknownPipeline is returned for a pipeline without a configured checkpoint.
var ErrUnknownPipeline = errors.New("unknown pipeline")
