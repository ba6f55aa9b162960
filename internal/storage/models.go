package storage

import (
	"errors"
	"time"

	"github.com/kalambet/dscopilot/internal/design"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Script sources.
const (
	SourceUser      = "user"
	SourceGenerated = "generated"
)

// Script is a saved Automator script with library bookkeeping.
type Script struct {
	design.AutomatorScript
	Source    string     `json:"source"`
	RunCount  int        `json:"runCount"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
}
