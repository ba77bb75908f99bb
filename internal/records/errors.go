package records

import "errors"

var (
	ErrRecordIDRequired = errors.New("records: record id is required")
	ErrTitleRequired    = errors.New("records: title is required")
	ErrTitleTooLong     = errors.New("records: title is too long")
	ErrDuplicate        = errors.New("records: record already exists")
)
