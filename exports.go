package gate

import (
	"github.com/xraph/gate/quota"
	"github.com/xraph/gate/types"
)

// Re-export common types for convenience so users don't have to import
// the subpackages.

// Entity is re-exported from types package.
type Entity = types.Entity

// Policy is re-exported from quota package.
type Policy = quota.Policy

// Degraded-mode policies, re-exported from quota.
const (
	FailOpen   = quota.FailOpen
	FailClosed = quota.FailClosed
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
