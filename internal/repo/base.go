// Package repo holds the plumbing shared by the GORM-backed stores.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by stores that may run either on the shared pool or inside
// a caller's transaction.
type Base struct {
	conn *gorm.DB
}

func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// Conn picks the handle for one statement: tx when the caller is inside a
// transaction, otherwise the pool scoped to ctx.
func (b Base) Conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	switch {
	case tx != nil:
		return tx
	case ctx == nil:
		return b.conn
	default:
		return b.conn.WithContext(ctx)
	}
}

// DB is Conn without a transaction.
func (b Base) DB(ctx context.Context) *gorm.DB {
	return b.Conn(ctx, nil)
}
