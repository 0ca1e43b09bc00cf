package quotation

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewQuoteNumber returns Q-YYYYMMDD-XXXXXXXXXXXX. The suffix is the last 48 random
// bits of a UUIDv7, so numbers generated in the same second do not collide.
func NewQuoteNumber(now time.Time) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "Q-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(hex.EncodeToString(id[10:]))
}
