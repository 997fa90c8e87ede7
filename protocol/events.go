package protocol

import (
	"github.com/ruteri/dual-governance/events"
	"github.com/ruteri/dual-governance/governor"
	"github.com/ruteri/dual-governance/registrar"
	"github.com/ruteri/dual-governance/token"
	"github.com/ruteri/dual-governance/vault"
)

// EventDecoder decodes the events of every component a node hosts.
func EventDecoder() *events.Registry {
	return events.NewRegistry(governor.ABI, registrar.ABI, vault.ABI, token.ABI)
}
