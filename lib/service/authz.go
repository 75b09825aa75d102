package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/db/models"
)

type Action string

const (
	ActionCreateInvoice      Action = "invoice:create"
	ActionAcknowledgeInvoice Action = "invoice:acknowledge"
	ActionListInvoice        Action = "invoice:list"
	ActionBuyInvoice         Action = "invoice:buy"
)

// role x action capability matrix. Ownership (created_by, buyer_email) is
// checked by the individual transitions on top of this.
var roleCapabilities = map[string]map[Action]bool{
	common.RoleMSME: {
		ActionCreateInvoice: true,
		ActionListInvoice:   true,
	},
	common.RoleBuyer: {
		ActionAcknowledgeInvoice: true,
	},
	common.RoleInvestor: {
		ActionBuyInvoice: true,
	},
}

// AuthorizeAction re-derives the acting identity's role from the profile row
// and checks it against the capability matrix. There is no bypass path: every
// state-changing call goes through here, internal callers included.
func (svc *InvoicehubService) AuthorizeAction(ctx context.Context, userID int64, action Action) (*models.User, error) {
	user, err := svc.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no profile for user %d", ErrAuthorization, userID)
		}
		return nil, err
	}
	if user.Deactivated {
		return nil, fmt.Errorf("%w: account deactivated", ErrAuthorization)
	}
	if !roleCapabilities[user.Role][action] {
		return nil, fmt.Errorf("%w: role %s may not perform %s", ErrAuthorization, user.Role, action)
	}
	return user, nil
}
