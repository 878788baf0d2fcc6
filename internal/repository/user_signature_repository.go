package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Rox-Lvmaohua/qrsignature/internal/domain"
	"github.com/Rox-Lvmaohua/qrsignature/internal/observability"
)

var (
	ErrSignatureNotFound = errors.New("user signature not found")
	ErrSignatureConflict = errors.New("user already has a stored signature")
)

// UserSignatureRepository owns reusable signatures. The one-per-user rule is
// backed by the unique index on user_id: Put translates the duplicate-key
// error into ErrSignatureConflict, so the invariant holds even if two
// processes race past any application-level check.
type UserSignatureRepository interface {
	ExistsByUserID(userID string) (bool, error)
	Put(signature *domain.UserSignature, override bool) error
	FindByID(id string) (*domain.UserSignature, error)
	FindByUserIDAndID(userID, id string) (*domain.UserSignature, error)
	ListByUserID(userID string) ([]domain.UserSignature, error)
	DeleteByUserIDAndID(userID, id string) error
}

type GormUserSignatureRepository struct{ db *gorm.DB }

func NewUserSignatureRepository(db *gorm.DB) UserSignatureRepository {
	return &GormUserSignatureRepository{db: db}
}

func (r *GormUserSignatureRepository) ExistsByUserID(userID string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.UserSignature{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user_signature", "exists", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user_signature", "exists", "success")
	return count > 0, nil
}

// Put stores a signature. Without override a plain create is attempted and
// a unique violation becomes ErrSignatureConflict. With override the prior
// record is replaced inside one transaction.
func (r *GormUserSignatureRepository) Put(signature *domain.UserSignature, override bool) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if override {
			if err := tx.Where("user_id = ?", signature.UserID).Delete(&domain.UserSignature{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(signature).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSignatureConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrSignatureConflict) {
			outcome = "conflict"
		}
		observability.RecordRepositoryOperation(context.Background(), "user_signature", "put", outcome)
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user_signature", "put", "success")
	return nil
}

func (r *GormUserSignatureRepository) FindByID(id string) (*domain.UserSignature, error) {
	var signature domain.UserSignature
	err := r.db.Where("id = ?", id).First(&signature).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user_signature", "find_by_id", "not_found")
			return nil, ErrSignatureNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user_signature", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user_signature", "find_by_id", "success")
	return &signature, nil
}

func (r *GormUserSignatureRepository) FindByUserIDAndID(userID, id string) (*domain.UserSignature, error) {
	var signature domain.UserSignature
	err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&signature).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user_signature", "find_owned", "not_found")
			return nil, ErrSignatureNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user_signature", "find_owned", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user_signature", "find_owned", "success")
	return &signature, nil
}

func (r *GormUserSignatureRepository) ListByUserID(userID string) ([]domain.UserSignature, error) {
	var signatures []domain.UserSignature
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&signatures).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user_signature", "list", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user_signature", "list", "success")
	return signatures, nil
}

func (r *GormUserSignatureRepository) DeleteByUserIDAndID(userID, id string) error {
	res := r.db.Where("user_id = ? AND id = ?", userID, id).Delete(&domain.UserSignature{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "user_signature", "delete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "user_signature", "delete", "not_found")
		return ErrSignatureNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "user_signature", "delete", "success")
	return nil
}
