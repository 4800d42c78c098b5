package comments

import "errors"

// Comment errors.
var (
	ErrCommentNotFound = errors.New("comment not found")
)
