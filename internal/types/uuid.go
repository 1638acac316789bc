package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex obligation_0ujsswThIGTUYm2K8FjOOfXtY1K
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

// Prefixes for all persisted entities.
const (
	UUID_PREFIX_BATCH                = "batch"
	UUID_PREFIX_ENROLLMENT           = "enr"
	UUID_PREFIX_OBLIGATION           = "oblg"
	UUID_PREFIX_SUBSCRIPTION         = "sub"
	UUID_PREFIX_SUBSCRIPTION_PAYMENT = "subpay"
)
