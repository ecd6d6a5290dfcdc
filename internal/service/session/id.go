package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator produces opaque session ids of the form <unix-millis>-<uuid v4>.
type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

func (g *Generator) Next() string {
	return fmt.Sprintf("%d-%s", g.now().UnixMilli(), uuid.NewString())
}
