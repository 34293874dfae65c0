package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns prefix_<uuidv7 hex>; v7 keeps ids roughly creation-ordered.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s_%d%s", prefix, time.Now().UnixNano(), compact(uuid.New()))
	}
	return prefix + "_" + compact(id)
}

func compact(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
