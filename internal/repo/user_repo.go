// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains user persistence: wallet-keyed
// get-or-create, profile edits, social links and cascading deletion.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/engrish-backend/internal/domain"
)

// GetOrCreateUserByWallet returns the user owning wallet, inserting one with
// defaultName when none exists. The insert is an ON CONFLICT DO NOTHING on the
// unique wallet address followed by a read, so concurrent first sign-ins for
// the same wallet converge on one row.
func GetOrCreateUserByWallet(ctx context.Context, db *gorm.DB, wallet, defaultName string) (*domain.User, error) {
	u := &domain.User{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		Name:          defaultName,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet_address"}},
			DoNothing: true,
		}).
		Create(u).Error
	if err != nil {
		return nil, err
	}
	return GetUserByWallet(ctx, db, wallet)
}

// GetUserByWallet loads a user by wallet address or returns ErrNotFound.
func GetUserByWallet(ctx context.Context, db *gorm.DB, wallet string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser loads a user by id or returns ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ProfilePatch lists the profile columns to change. Nil fields are left
// untouched.
type ProfilePatch struct {
	Name   *string
	Bio    *string
	Avatar *string
}

// UpdateProfile applies patch to the user and returns the fresh row.
func UpdateProfile(ctx context.Context, db *gorm.DB, id string, patch ProfilePatch) (*domain.User, error) {
	updates := map[string]any{}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Bio != nil {
		updates["bio"] = *patch.Bio
	}
	if patch.Avatar != nil {
		updates["avatar"] = *patch.Avatar
	}
	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return GetUser(ctx, db, id)
}

// LinkTwitter stores acct as the user's social identity, replacing any prior
// link. The avatar and display name snapshot come from the account.
func LinkTwitter(ctx context.Context, db *gorm.DB, userID string, acct domain.SocialAccount, now time.Time) (*domain.User, error) {
	updates := map[string]any{
		"twitter_id":        acct.ID,
		"twitter_username":  acct.Username,
		"twitter_linked_at": now,
		"updated_at":        now,
	}
	if acct.ProfileImageURL != "" {
		updates["avatar"] = acct.ProfileImageURL
	}
	if acct.Name != "" {
		updates["name"] = truncateRunes(acct.Name, 50)
	}
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetUser(ctx, db, userID)
}

// UnlinkTwitter clears the social identity. Persisted mentions are kept.
func UnlinkTwitter(ctx context.Context, db *gorm.DB, userID string) error {
	res := db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]any{
		"twitter_id":        nil,
		"twitter_username":  nil,
		"twitter_linked_at": nil,
		"updated_at":        time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the user and every dependent row in one transaction.
// Dependents are deleted explicitly so the result does not rely on the
// driver enforcing foreign key cascades.
func DeleteUser(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&domain.Mention{}, &domain.GeneratedImage{}, &domain.Idempotency{}} {
			col := "user_id"
			if _, ok := model.(*domain.Mention); ok {
				col = "linked_user_id"
			}
			if err := tx.Where(col+" = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", id).Delete(&domain.UserStats{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// IsNotFound reports whether err means "no such row".
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
