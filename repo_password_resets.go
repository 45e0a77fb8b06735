package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PasswordResets stores reset requests
type PasswordResets interface {
	repository.Repository[*PasswordReset]
	// ConsumeTx moves a requested reset to changed. It fails with
	// ErrResourceNotFound when id does not name a reset for userID that is
	// still requested.
	ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, userID int64) error
}

type passwordResets struct {
	repository.Repository[*PasswordReset]
}

var _ PasswordResets = (*passwordResets)(nil)

func NewPasswordResetsRepository(db *bun.DB) PasswordResets {
	handlers := repository.ModelHandlers[*PasswordReset]{
		NewRecord: func() *PasswordReset {
			return &PasswordReset{}
		},
		GetID: func(record *PasswordReset) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PasswordReset, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return &passwordResets{Repository: repository.NewRepository(db, handlers)}
}

func (r *passwordResets) ConsumeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, userID int64) error {
	now := time.Now()
	res, err := tx.NewUpdate().
		Model((*PasswordReset)(nil)).
		Set("status = ?", ResetChangedStatus).
		Set("reseted_at = ?", now).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.status = ?", ResetRequestedStatus).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrResourceNotFound
	}
	return nil
}
