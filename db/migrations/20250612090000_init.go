package migrations

import (
	"context"

	"github.com/openmsme/invoicehub/db/models"
	"github.com/uptrace/bun"
)

/* This init reflects the latest model fields when run on a fresh db.
Make sure that when you add/remove columns in subsequent migrations
IfNotExists/IfExists is used, otherwise it's going to result in errors. */
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {

		if _, err := db.NewCreateTable().Model((*models.User)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.Invoice)(nil)).Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.Purchase)(nil)).Exec(ctx); err != nil {
			return err
		}

		// at most one live purchase record per invoice
		if _, err := db.Exec(`CREATE UNIQUE INDEX purchases_invoice_id_live_idx ON purchases (invoice_id) WHERE NOT superseded`); err != nil {
			return err
		}
		if _, err := db.Exec(`CREATE INDEX invoices_status_idx ON invoices (status)`); err != nil {
			return err
		}
		return nil
	}, nil)
}
