package authz

import "errors"

// ErrDenied marks every authorization refusal so transport layers can map
// it without string inspection.
var ErrDenied = errors.New("authz: permission denied")
