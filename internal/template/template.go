package template

import (
	"time"
)

// Template is a saved bulk message template
type Template struct {
	Name      string    `json:"name"`
	Template  string    `json:"template"`
	Caption   string    `json:"caption"`
	UpdatedAt time.Time `json:"updated_at"`
}
