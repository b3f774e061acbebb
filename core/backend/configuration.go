package backend

import (
	"github.com/goccy/go-json"

	"github.com/hicsail/anchor/core"
)

// Configuration holds a complete backend configuration
type Configuration struct {
	Resources []resourceConfiguration `json:"resources"`
}

// resourceConfiguration describes one manageable resource
type resourceConfiguration struct {
	// Resource is the unique name of the resource, used as the URL path
	// segment and as the store collection name
	Resource string `json:"resource"`
	// Schema is the JSON schema create and update payloads are validated against
	Schema json.RawMessage `json:"schema"`
	// Default carries default values applied to unset fields at creation
	Default     json.RawMessage  `json:"default"`
	Settings    resourceSettings `json:"settings"`
	Description string           `json:"description"`
}

// resourceSettings are the per-resource lifecycle and authorization settings.
//
// A nil scope means the operation is unrestricted for any authenticated
// caller; a non-empty scope lists the roles of which the caller must hold at
// least one.
type resourceSettings struct {
	// Timestamps requests createdAt/updatedAt stamping by the engine
	Timestamps bool `json:"timestamps"`
	// UserID requests ownership stamping from the authenticated caller
	UserID      bool     `json:"user_id"`
	GetScope    []string `json:"get_scope"`
	PostScope   []string `json:"post_scope"`
	UpdateScope []string `json:"update_scope"`
	// DeleteScope is parsed for descriptor completeness; there is no delete route
	DeleteScope []string `json:"delete_scope"`
}

// scopeFor returns the role scope guarding the given operation
func (s *resourceSettings) scopeFor(op core.Operation) []string {
	switch op {
	case core.OperationList:
		return s.GetScope
	case core.OperationCreate:
		return s.PostScope
	case core.OperationUpdate:
		return s.UpdateScope
	}
	return nil
}
