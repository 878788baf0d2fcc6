package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Rox-Lvmaohua/qrsignature/internal/domain"
	"github.com/Rox-Lvmaohua/qrsignature/internal/observability"
)

var ErrSessionNotFound = errors.New("sign session not found")

// SignSessionRepository owns SignSession records. All status mutations are
// conditional updates keyed on the current status, so concurrent writers for
// the same session linearize at the database and transitions can never move
// backward, regardless of how many processes share the store.
type SignSessionRepository interface {
	Create(session *domain.SignSession) error
	FindByID(id string) (*domain.SignSession, error)
	MarkScanned(id string) (bool, error)
	Complete(id, signatureBase64 string, signedAt time.Time) (bool, error)
	MarkExpired(id string) (bool, error)
	SetArchiveObjectKey(id, objectKey string) error
	NextSequence(userID, fileID string) (int, error)
	ListCompletedByUser(userID string, page PageRequest) (*PageResult[domain.SignSession], error)
	DeleteTerminalOlderThan(cutoff time.Time) (int64, error)
}

type GormSignSessionRepository struct{ db *gorm.DB }

func NewSignSessionRepository(db *gorm.DB) SignSessionRepository {
	return &GormSignSessionRepository{db: db}
}

func (r *GormSignSessionRepository) Create(session *domain.SignSession) error {
	if err := r.db.Create(session).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "sign_session", "create", "success")
	return nil
}

func (r *GormSignSessionRepository) FindByID(id string) (*domain.SignSession, error) {
	var session domain.SignSession
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "sign_session", "find_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "sign_session", "find_by_id", "success")
	return &session, nil
}

// MarkScanned moves an unscanned session to scanned. Returns false when the
// session was not in unscanned, which callers treat as "someone got there
// first" and re-read.
func (r *GormSignSessionRepository) MarkScanned(id string) (bool, error) {
	res := r.db.Model(&domain.SignSession{}).
		Where("id = ? AND status = ?", id, domain.StatusUnscanned).
		Update("status", domain.StatusScanned)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "mark_scanned", "error")
		return false, res.Error
	}
	outcome := "success"
	if res.RowsAffected == 0 {
		outcome = "no_transition"
	}
	observability.RecordRepositoryOperation(context.Background(), "sign_session", "mark_scanned", outcome)
	return res.RowsAffected > 0, nil
}

// Complete moves a live session to signed and stores the image. The guard on
// status makes completion exactly-once: a duplicate confirm finds zero rows
// affected and the caller returns the already-stored result instead.
func (r *GormSignSessionRepository) Complete(id, signatureBase64 string, signedAt time.Time) (bool, error) {
	res := r.db.Model(&domain.SignSession{}).
		Where("id = ? AND status IN ?", id, []domain.SignStatus{domain.StatusUnscanned, domain.StatusScanned}).
		Updates(map[string]any{
			"status":           domain.StatusSigned,
			"signature_base64": signatureBase64,
			"signed_at":        signedAt,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "complete", "error")
		return false, res.Error
	}
	outcome := "success"
	if res.RowsAffected == 0 {
		outcome = "no_transition"
	}
	observability.RecordRepositoryOperation(context.Background(), "sign_session", "complete", outcome)
	return res.RowsAffected > 0, nil
}

// MarkExpired is a CAS like the others: it can never demote a signed session.
func (r *GormSignSessionRepository) MarkExpired(id string) (bool, error) {
	res := r.db.Model(&domain.SignSession{}).
		Where("id = ? AND status IN ?", id, []domain.SignStatus{domain.StatusUnscanned, domain.StatusScanned}).
		Update("status", domain.StatusExpired)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "mark_expired", "error")
		return false, res.Error
	}
	outcome := "success"
	if res.RowsAffected == 0 {
		outcome = "no_transition"
	}
	observability.RecordRepositoryOperation(context.Background(), "sign_session", "mark_expired", outcome)
	return res.RowsAffected > 0, nil
}

func (r *GormSignSessionRepository) SetArchiveObjectKey(id, objectKey string) error {
	res := r.db.Model(&domain.SignSession{}).
		Where("id = ?", id).
		Update("archive_object_key", objectKey)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "set_archive_key", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "set_archive_key", "not_found")
		return ErrSessionNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "sign_session", "set_archive_key", "success")
	return nil
}

// NextSequence returns max(sequence)+1 over all sessions for a user+file
// pair, starting at 1.
func (r *GormSignSessionRepository) NextSequence(userID, fileID string) (int, error) {
	var max *int
	err := r.db.Model(&domain.SignSession{}).
		Where("user_id = ? AND file_id = ?", userID, fileID).
		Select("MAX(sequence)").
		Scan(&max).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "next_sequence", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(context.Background(), "sign_session", "next_sequence", "success")
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

func (r *GormSignSessionRepository) ListCompletedByUser(userID string, page PageRequest) (*PageResult[domain.SignSession], error) {
	page = normalizePageRequest(page)

	query := r.db.Model(&domain.SignSession{}).
		Where("user_id = ? AND status = ?", userID, domain.StatusSigned)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "list_completed", "error")
		return nil, err
	}

	var sessions []domain.SignSession
	err := query.
		Order("signed_at DESC").
		Offset((page.Page - 1) * page.PageSize).
		Limit(page.PageSize).
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "list_completed", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "sign_session", "list_completed", "success")
	return &PageResult[domain.SignSession]{
		Items:      sessions,
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, page.PageSize),
	}, nil
}

// DeleteTerminalOlderThan purges signed and expired sessions past the
// retention window. Live sessions are never touched, so an in-flight poll
// cannot observe its session vanishing.
func (r *GormSignSessionRepository) DeleteTerminalOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.
		Where("status IN ? AND updated_at < ?", []domain.SignStatus{domain.StatusSigned, domain.StatusExpired}, cutoff).
		Delete(&domain.SignSession{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "sign_session", "purge", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "sign_session", "purge", "success")
	return res.RowsAffected, nil
}
