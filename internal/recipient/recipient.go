// Package recipient turns raw uploaded rows into campaign recipients.
//
// The first column of every row is the phone number. The remaining columns are
// exposed to templates through the header names supplied by the caller and
// through the positional aliases VAR1..VAR10.
package recipient

// Recipient is a prepared campaign recipient
type Recipient struct {
	Address   string            `json:"number"`
	Variables map[string]string `json:"vars"`
	RowIndex  int               `json:"rowIndex"`
}

// Resolved is a recipient after the existence precheck. An empty ResolvedID
// means the gateway has no account for the address.
type Resolved struct {
	Recipient
	ResolvedID string `json:"jid,omitempty"`
}

// Reachable reports whether the gateway returned an account for the recipient
func (r Resolved) Reachable() bool {
	return r.ResolvedID != ""
}

// Prepared is the outcome of Prepare
type Prepared struct {
	Recipients      []Recipient `json:"recipients"`
	TotalRows       int         `json:"totalRows"`
	ValidRecipients int         `json:"validRecipients"`
}
