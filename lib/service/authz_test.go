package service

import (
	"testing"

	"github.com/openmsme/invoicehub/common"
	"github.com/stretchr/testify/assert"
)

func TestCapabilityMatrix(t *testing.T) {
	allActions := []Action{ActionCreateInvoice, ActionAcknowledgeInvoice, ActionListInvoice, ActionBuyInvoice}

	allowed := map[string][]Action{
		common.RoleMSME:     {ActionCreateInvoice, ActionListInvoice},
		common.RoleBuyer:    {ActionAcknowledgeInvoice},
		common.RoleInvestor: {ActionBuyInvoice},
	}

	for role, actions := range allowed {
		permitted := map[Action]bool{}
		for _, action := range actions {
			permitted[action] = true
		}
		for _, action := range allActions {
			assert.Equalf(t, permitted[action], roleCapabilities[role][action],
				"role %s action %s", role, action)
		}
	}

	// unknown roles hold no capabilities at all
	for _, action := range allActions {
		assert.False(t, roleCapabilities["admin"][action])
	}
}
