package vesting

import "github.com/xraph/vesting/id"

// ID is the primary identifier type for all vesting records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
