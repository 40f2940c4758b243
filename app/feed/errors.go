package feed

import "errors"

var (
	ErrMissingField    = errors.New("missing required field")
	ErrUnparseableDate = errors.New("unparseable publish date")
)
