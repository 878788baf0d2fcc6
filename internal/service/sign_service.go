package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rox-Lvmaohua/qrsignature/internal/domain"
	"github.com/Rox-Lvmaohua/qrsignature/internal/observability"
	"github.com/Rox-Lvmaohua/qrsignature/internal/repository"
	"github.com/Rox-Lvmaohua/qrsignature/internal/security"
)

var (
	ErrValidation           = errors.New("invalid sign request")
	ErrSessionExpired       = errors.New("sign session expired")
	ErrSessionAlreadySigned = errors.New("sign session already signed")
)

// SaveStatus reports the reusable-signature save outcome of a confirm call,
// independently of the signing outcome.
type SaveStatus string

const (
	SaveStatusSaved        SaveStatus = "saved"
	SaveStatusConflict     SaveStatus = "conflict"
	SaveStatusSkipped      SaveStatus = "skipped"
	SaveStatusNotRequested SaveStatus = "not_requested"
)

type GenerateResult struct {
	Token      string            `json:"token"`
	SignURL    string            `json:"sign_url"`
	SessionRef string            `json:"session_ref"`
	Sequence   int               `json:"sequence"`
	Status     domain.SignStatus `json:"status"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

type SessionPayload struct {
	SessionRef      string            `json:"session_ref"`
	ProjectID       string            `json:"project_id"`
	UserID          string            `json:"user_id"`
	FileID          string            `json:"file_id"`
	MetaCode        string            `json:"meta_code"`
	Status          domain.SignStatus `json:"status"`
	Sequence        int               `json:"sequence"`
	SignatureBase64 string            `json:"signature_base64,omitempty"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

type ConfirmInput struct {
	SignatureBase64 string
	UserSignatureID string
	SaveForReuse    bool
	Override        bool
}

type ConfirmResult struct {
	SessionRef      string            `json:"session_ref"`
	Status          domain.SignStatus `json:"status"`
	SignatureBase64 string            `json:"signature_base64"`
	Sequence        int               `json:"sequence"`
	SaveStatus      SaveStatus        `json:"save_status"`
}

type StatusResult struct {
	SessionRef      string            `json:"session_ref"`
	Status          domain.SignStatus `json:"status"`
	Sequence        int               `json:"sequence"`
	SignatureBase64 string            `json:"signature_base64,omitempty"`
}

type SignServiceInterface interface {
	Generate(ctx context.Context, projectID, userID, fileID, metaCode string) (*GenerateResult, error)
	Resolve(ctx context.Context, claims *security.SignClaims) (*SessionPayload, error)
	Confirm(ctx context.Context, claims *security.SignClaims, in ConfirmInput) (*ConfirmResult, error)
	Status(ctx context.Context, sessionRef string) (*StatusResult, error)
	SignatureImage(ctx context.Context, sessionRef string) (string, error)
	SignatureImageURL(ctx context.Context, sessionRef string) (string, error)
	UserSignatures(ctx context.Context, userID string) ([]domain.UserSignature, error)
	CanSaveSignature(ctx context.Context, userID string) (bool, error)
	DeleteUserSignature(ctx context.Context, userID, signatureID string) error
	History(ctx context.Context, userID string, page repository.PageRequest) (*repository.PageResult[domain.SignSession], error)
	PurgeOldSessions(ctx context.Context) (int64, error)
}

type SignServiceConfig struct {
	BaseURL        string
	SessionTTL     time.Duration
	TokenTTL       time.Duration
	StatusCacheTTL time.Duration
	Retention      time.Duration
}

type SignService struct {
	sessions   repository.SignSessionRepository
	signatures repository.UserSignatureRepository
	codec      *security.SignTokenCodec
	cache      StatusCacheStore
	archive    SignatureArchive
	logger     *slog.Logger
	cfg        SignServiceConfig

	// Serializes the exists+put pair per user so two concurrent confirms for
	// the same user cannot both pass the existence check. The DB unique index
	// is the cross-process backstop.
	userLocks keyedMutex

	now func() time.Time
}

func NewSignService(
	sessions repository.SignSessionRepository,
	signatures repository.UserSignatureRepository,
	codec *security.SignTokenCodec,
	cache StatusCacheStore,
	archive SignatureArchive,
	logger *slog.Logger,
	cfg SignServiceConfig,
) *SignService {
	if cache == nil {
		cache = NewNoopStatusCacheStore()
	}
	return &SignService{
		sessions:   sessions,
		signatures: signatures,
		codec:      codec,
		cache:      cache,
		archive:    archive,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *SignService) Generate(ctx context.Context, projectID, userID, fileID, metaCode string) (*GenerateResult, error) {
	for field, value := range map[string]string{
		"projectId": projectID,
		"userId":    userID,
		"fileId":    fileID,
		"metaCode":  metaCode,
	} {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%w: %s is required", ErrValidation, field)
		}
	}

	now := s.now()
	session := &domain.SignSession{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		UserID:    userID,
		FileID:    fileID,
		MetaCode:  metaCode,
		Status:    domain.StatusUnscanned,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}

	// The sequence read and the insert share a per-user+file lock so two
	// generates in this process cannot mint the same ordinal. Sequence is
	// display and audit ordering only.
	unlock := s.userLocks.lock("seq/" + userID + "/" + fileID)
	sequence, err := s.sessions.NextSequence(userID, fileID)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("next sequence: %w", err)
	}
	session.Sequence = sequence
	err = s.sessions.Create(session)
	unlock()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	token, err := s.codec.Issue(session.ID, userID, projectID, fileID, metaCode, s.cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "sign session created",
		"session_ref", session.ID,
		"user_id", userID,
		"file_id", fileID,
		"sequence", sequence,
	)
	return &GenerateResult{
		Token:      token,
		SignURL:    fmt.Sprintf("%s/sign?token=%s", strings.TrimRight(s.cfg.BaseURL, "/"), url.QueryEscape(token)),
		SessionRef: session.ID,
		Sequence:   sequence,
		Status:     session.Status,
		ExpiresAt:  session.ExpiresAt,
	}, nil
}

// Resolve is the signer-side page load. It moves an unscanned session to
// scanned exactly once; repeat loads and refreshes after signing are
// idempotent reads.
func (s *SignService) Resolve(ctx context.Context, claims *security.SignClaims) (*SessionPayload, error) {
	session, err := s.loadLive(ctx, claims.SessionRef)
	if err != nil {
		return nil, err
	}

	if session.Status == domain.StatusSigned {
		return s.payload(session), nil
	}

	if session.Status.CanTransitionTo(domain.StatusScanned) {
		moved, err := s.sessions.MarkScanned(session.ID)
		if err != nil {
			return nil, fmt.Errorf("mark scanned: %w", err)
		}
		if moved {
			session.Status = domain.StatusScanned
			s.invalidateStatus(ctx, session.ID)
		} else {
			// Lost the race to a concurrent resolver or confirm; reload to
			// report whatever state won.
			if session, err = s.loadLive(ctx, claims.SessionRef); err != nil {
				return nil, err
			}
		}
	}

	return s.payload(session), nil
}

func (s *SignService) Confirm(ctx context.Context, claims *security.SignClaims, in ConfirmInput) (*ConfirmResult, error) {
	session, err := s.loadLive(ctx, claims.SessionRef)
	if err != nil {
		return nil, err
	}

	if session.Status == domain.StatusSigned {
		// Duplicate submission; hand back the stored result untouched.
		return &ConfirmResult{
			SessionRef:      session.ID,
			Status:          session.Status,
			SignatureBase64: session.SignatureBase64,
			Sequence:        session.Sequence,
			SaveStatus:      SaveStatusNotRequested,
		}, nil
	}

	image := in.SignatureBase64
	reusedStored := false
	if in.UserSignatureID != "" {
		stored, err := s.signatures.FindByUserIDAndID(claims.UserID(), in.UserSignatureID)
		if err != nil {
			return nil, err
		}
		image = stored.SignatureBase64
		reusedStored = true
	}
	if strings.TrimSpace(image) == "" {
		return nil, fmt.Errorf("%w: signatureBase64 or userSignatureId is required", ErrValidation)
	}

	completed, err := s.sessions.Complete(session.ID, image, s.now())
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	if !completed {
		// Another confirm or the expiry check won the CAS; reload and report
		// the state that actually stuck.
		session, err = s.loadLive(ctx, claims.SessionRef)
		if err != nil {
			return nil, err
		}
		if session.Status != domain.StatusSigned {
			return nil, fmt.Errorf("%w: session in state %s", ErrSessionAlreadySigned, session.Status)
		}
		return &ConfirmResult{
			SessionRef:      session.ID,
			Status:          session.Status,
			SignatureBase64: session.SignatureBase64,
			Sequence:        session.Sequence,
			SaveStatus:      SaveStatusNotRequested,
		}, nil
	}
	s.invalidateStatus(ctx, session.ID)

	saveStatus := SaveStatusNotRequested
	if in.SaveForReuse {
		// Reused stored signatures are already in the store; nothing to save.
		if reusedStored {
			saveStatus = SaveStatusSkipped
		} else {
			saveStatus = s.saveForReuse(ctx, claims.UserID(), image, in.Override)
		}
	}

	s.archiveImage(ctx, session, image)

	s.logger.InfoContext(ctx, "sign session completed",
		"session_ref", session.ID,
		"user_id", claims.UserID(),
		"sequence", session.Sequence,
		"save_status", string(saveStatus),
	)
	return &ConfirmResult{
		SessionRef:      session.ID,
		Status:          domain.StatusSigned,
		SignatureBase64: image,
		Sequence:        session.Sequence,
		SaveStatus:      saveStatus,
	}, nil
}

// saveForReuse applies the one-signature-per-user policy. A conflict is
// reported, never escalated: the signing itself already succeeded.
func (s *SignService) saveForReuse(ctx context.Context, userID, image string, override bool) SaveStatus {
	unlock := s.userLocks.lock(userID)
	defer unlock()

	exists, err := s.signatures.ExistsByUserID(userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "signature existence check failed", "user_id", userID, "error", err)
		return SaveStatusSkipped
	}
	if exists && !override {
		return SaveStatusConflict
	}

	err = s.signatures.Put(&domain.UserSignature{
		ID:              uuid.NewString(),
		UserID:          userID,
		SignatureBase64: image,
		IsDefault:       true,
	}, override)
	if errors.Is(err, repository.ErrSignatureConflict) {
		return SaveStatusConflict
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "signature save failed", "user_id", userID, "error", err)
		return SaveStatusSkipped
	}
	return SaveStatusSaved
}

func (s *SignService) archiveImage(ctx context.Context, session *domain.SignSession, image string) {
	if s.archive == nil {
		return
	}
	objectKey, err := s.archive.Store(ctx, session.UserID, session.ID, image)
	if err != nil {
		// Archival is best-effort; the session row keeps the authoritative copy.
		s.logger.WarnContext(ctx, "signature archive failed", "session_ref", session.ID, "error", err)
		return
	}
	if err := s.sessions.SetArchiveObjectKey(session.ID, objectKey); err != nil {
		s.logger.WarnContext(ctx, "archive key stamp failed", "session_ref", session.ID, "error", err)
	}
}

// Status returns the current snapshot without blocking. Expiry is applied
// lazily here as well, so a poller eventually observes expired even if the
// signer never showed up.
func (s *SignService) Status(ctx context.Context, sessionRef string) (*StatusResult, error) {
	if cached, ok, err := s.cache.Get(ctx, sessionRef); err == nil && ok {
		var result StatusResult
		if err := json.Unmarshal(cached, &result); err == nil {
			observability.RecordStatusCacheEvent(ctx, "hit")
			return &result, nil
		}
	} else if err != nil {
		s.logger.WarnContext(ctx, "status cache read failed", "session_ref", sessionRef, "error", err)
	}
	observability.RecordStatusCacheEvent(ctx, "miss")

	session, err := s.sessions.FindByID(sessionRef)
	if err != nil {
		return nil, err
	}
	if session.ExpiredAt(s.now()) && session.Status.CanTransitionTo(domain.StatusExpired) {
		if _, err := s.sessions.MarkExpired(session.ID); err != nil {
			return nil, fmt.Errorf("mark expired: %w", err)
		}
		session.Status = domain.StatusExpired
	}

	result := &StatusResult{
		SessionRef: session.ID,
		Status:     session.Status,
		Sequence:   session.Sequence,
	}
	if session.Status == domain.StatusSigned {
		result.SignatureBase64 = session.SignatureBase64
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := s.cache.Set(ctx, sessionRef, payload, s.cfg.StatusCacheTTL); err != nil {
			s.logger.WarnContext(ctx, "status cache write failed", "session_ref", sessionRef, "error", err)
		}
	}
	return result, nil
}

func (s *SignService) SignatureImage(ctx context.Context, sessionRef string) (string, error) {
	session, err := s.sessions.FindByID(sessionRef)
	if err != nil {
		return "", err
	}
	if session.Status != domain.StatusSigned {
		return "", fmt.Errorf("%w: session %s not signed", repository.ErrSignatureNotFound, sessionRef)
	}
	return session.SignatureBase64, nil
}

// SignatureImageURL hands out a short-lived link to the archived copy of a
// signed image. Sessions signed before archival was enabled, or whose upload
// failed, have no archived copy.
func (s *SignService) SignatureImageURL(ctx context.Context, sessionRef string) (string, error) {
	session, err := s.sessions.FindByID(sessionRef)
	if err != nil {
		return "", err
	}
	if session.Status != domain.StatusSigned {
		return "", fmt.Errorf("%w: session %s not signed", repository.ErrSignatureNotFound, sessionRef)
	}
	if s.archive == nil || session.ArchiveObjectKey == "" {
		return "", fmt.Errorf("%w: session %s has no archived copy", repository.ErrSignatureNotFound, sessionRef)
	}
	return s.archive.PresignedURL(ctx, session.ArchiveObjectKey)
}

func (s *SignService) UserSignatures(ctx context.Context, userID string) ([]domain.UserSignature, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	signatures, err := s.signatures.ListByUserID(userID)
	if err != nil {
		return nil, err
	}
	if len(signatures) == 0 {
		return nil, repository.ErrSignatureNotFound
	}
	return signatures, nil
}

func (s *SignService) CanSaveSignature(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	exists, err := s.signatures.ExistsByUserID(userID)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *SignService) DeleteUserSignature(ctx context.Context, userID, signatureID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(signatureID) == "" {
		return fmt.Errorf("%w: userId and signatureId are required", ErrValidation)
	}
	return s.signatures.DeleteByUserIDAndID(userID, signatureID)
}

func (s *SignService) History(ctx context.Context, userID string, page repository.PageRequest) (*repository.PageResult[domain.SignSession], error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	return s.sessions.ListCompletedByUser(userID, page)
}

func (s *SignService) PurgeOldSessions(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.Retention)
	purged, err := s.sessions.DeleteTerminalOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.InfoContext(ctx, "purged terminal sign sessions", "count", purged, "cutoff", cutoff)
	}
	return purged, nil
}

// loadLive fetches a session and applies lazy expiry: a live session past its
// deadline is flipped to expired first, then reported as ErrSessionExpired.
func (s *SignService) loadLive(ctx context.Context, sessionRef string) (*domain.SignSession, error) {
	session, err := s.sessions.FindByID(sessionRef)
	if err != nil {
		return nil, err
	}
	if session.ExpiredAt(s.now()) {
		if session.Status.CanTransitionTo(domain.StatusExpired) {
			if _, err := s.sessions.MarkExpired(session.ID); err != nil {
				return nil, fmt.Errorf("mark expired: %w", err)
			}
			s.invalidateStatus(ctx, session.ID)
		}
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (s *SignService) payload(session *domain.SignSession) *SessionPayload {
	p := &SessionPayload{
		SessionRef: session.ID,
		ProjectID:  session.ProjectID,
		UserID:     session.UserID,
		FileID:     session.FileID,
		MetaCode:   session.MetaCode,
		Status:     session.Status,
		Sequence:   session.Sequence,
		ExpiresAt:  session.ExpiresAt,
	}
	if session.Status == domain.StatusSigned {
		p.SignatureBase64 = session.SignatureBase64
	}
	return p
}

func (s *SignService) invalidateStatus(ctx context.Context, sessionRef string) {
	if err := s.cache.Invalidate(ctx, sessionRef); err != nil {
		s.logger.WarnContext(ctx, "status cache invalidate failed", "session_ref", sessionRef, "error", err)
		return
	}
	observability.RecordStatusCacheEvent(ctx, "invalidate")
}

// keyedMutex hands out one mutex per key, created on demand. Entries are not
// reaped; the key space is bounded by the active user population.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
