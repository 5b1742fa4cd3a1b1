package cron

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
