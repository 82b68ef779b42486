package credits

import "github.com/xraph/credits/id"

// ID is the identifier type of purchases, deductions, sessions and
// generation requests.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
