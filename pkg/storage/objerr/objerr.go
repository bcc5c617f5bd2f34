// Package objerr holds errors shared by the storage backends.
package objerr

import "errors"

var ErrNotFound = errors.New("object not found")
