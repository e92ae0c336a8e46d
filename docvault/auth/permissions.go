package auth

import (
	"strings"

	"github.com/google/uuid"
)

// CanAccessObject reports whether an object key lives in the user's storage
// namespace. It is a pure prefix check on the key, it does not consult the
// document metadata, so it also guards keys whose metadata record was soft
// deleted or never existed. Callers must check it before any object store
// read, delete, or stream and must fail closed on false.
func CanAccessObject(userId uuid.UUID, key string) bool {
	return strings.HasPrefix(key, userId.String()+"/")
}
