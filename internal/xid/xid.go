// Package xid mints prefixed identifiers and business document numbers.
package xid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// New returns prefix-<uuid v7>. v7 ids sort by creation time.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + id.String()
}

// DocumentNo formats sequence n as a padded business number, e.g. OR-0007.
func DocumentNo(prefix string, n int) string {
	return fmt.Sprintf("%s-%04d", strings.ToUpper(prefix), n)
}
