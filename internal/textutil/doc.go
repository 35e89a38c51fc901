// Package textutil provides filename and token sanitization helpers used when
// deriving workspace slugs and artifact names from user-supplied input.
package textutil
