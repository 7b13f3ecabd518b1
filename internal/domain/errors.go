package domain

import "errors"

// ErrNotFound is wrapped by repositories when a looked-up entity does not exist
var ErrNotFound = errors.New("not found")
