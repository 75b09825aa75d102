package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// User : profile of an acting identity (MSME, buyer or investor). The role
// stored here is the authoritative one; client-asserted roles are never
// trusted.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID            int64        `json:"id" bun:",pk,autoincrement"`
	Email         string       `json:"email" bun:",unique,notnull"`
	Login         string       `json:"login" bun:",unique,notnull"`
	Password      string       `json:"-" bun:",notnull"`
	Role          string       `json:"role" bun:",notnull"`
	WalletAddress string       `json:"wallet_address,omitempty" bun:",nullzero"`
	Deactivated   bool         `json:"-" bun:",nullzero"`
	CreatedAt     time.Time    `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt     bun.NullTime `json:"updated_at"`
}

func (u *User) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		u.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

var _ bun.BeforeAppendModelHook = (*User)(nil)
