package dataset

import (
	"github.com/turtacn/molx/pkg/errors"
)

var (
	ErrRawDataMissing      = errors.New(errors.ErrCodeRawDataMissing, "raw data missing; please download the raw files manually into the raw directory")
	ErrPropertiesMalformed = errors.New(errors.ErrCodePropertiesMalformed, "malformed properties table")
	ErrSplitIndexMalformed = errors.New(errors.ErrCodeSplitIndexMalformed, "malformed split index")
	ErrSplitUnknown        = errors.New(errors.ErrCodeSplitUnknown, "unknown split; expected train|val|test")
	ErrSplitModeUnknown    = errors.New(errors.ErrCodeSplitModeUnknown, "unknown split mode; expected random|scaffold")
	ErrManifestMalformed   = errors.New(errors.ErrCodeManifestMalformed, "malformed build manifest")
	ErrSanitizeFailed      = errors.New(errors.ErrCodeMoleculeSanitizeFailed, "molecule sanitization failed")
	ErrNotProcessed        = errors.New(errors.ErrCodeNotFound, "dataset has not been processed")
)
