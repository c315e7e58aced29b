package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAutomationTokenNotFound  = errors.New("automation token not found")
	ErrAutomationTokenNameTaken = errors.New("automation token name already exists")
	ErrInvalidAutomationToken   = errors.New("invalid automation token")
)

// AutomationToken is a bearer credential for the `add_smart` ingestion
// endpoint used by home-automation/voice-assistant integrations — the only
// write path that runs outside the authenticated web session.
type AutomationToken struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Name       string
	TokenPrefix string
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// AutomationTokenWithSecret is returned only at creation time.
type AutomationTokenWithSecret struct {
	AutomationToken
	Token string
}

type AutomationTokenStore struct {
	pool *pgxpool.Pool
}

func NewAutomationTokenStore(pool *pgxpool.Pool) *AutomationTokenStore {
	return &AutomationTokenStore{pool: pool}
}

// generateToken mirrors the "qz_<64 hex chars>" opaque-bearer-token shape.
func generateToken() (token, prefix, hash string, err error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", err
	}
	token = "qz_" + hex.EncodeToString(randomBytes)
	prefix = token[:11]
	hashBytes := sha256.Sum256([]byte(token))
	hash = hex.EncodeToString(hashBytes[:])
	return token, prefix, hash, nil
}

func hashToken(token string) string {
	hashBytes := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hashBytes[:])
}

func (s *AutomationTokenStore) Create(ctx context.Context, userID uuid.UUID, name string) (*AutomationTokenWithSecret, error) {
	token, prefix, hash, err := generateToken()
	if err != nil {
		return nil, err
	}

	at := &AutomationTokenWithSecret{
		AutomationToken: AutomationToken{
			ID:          uuid.New(),
			UserID:      userID,
			Name:        name,
			TokenPrefix: prefix,
			CreatedAt:   time.Now().UTC(),
		},
		Token: token,
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO automation_tokens (id, user_id, name, token_hash, token_prefix, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, at.ID, userID, name, hash, prefix, at.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrAutomationTokenNameTaken
		}
		return nil, err
	}
	return at, nil
}

func (s *AutomationTokenStore) List(ctx context.Context, userID uuid.UUID) ([]AutomationToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, token_prefix, last_used_at, created_at
		FROM automation_tokens WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []AutomationToken
	for rows.Next() {
		var t AutomationToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenPrefix, &t.LastUsedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *AutomationTokenStore) Delete(ctx context.Context, userID, tokenID uuid.UUID) error {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM automation_tokens WHERE id = $1 AND user_id = $2
	`, tokenID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAutomationTokenNotFound
	}
	return nil
}

// ValidateAndGetUserID resolves a bearer token to its owner, for the
// add_smart endpoint's auth check.
func (s *AutomationTokenStore) ValidateAndGetUserID(ctx context.Context, token string) (uuid.UUID, error) {
	hash := hashToken(token)

	var userID, tokenID uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id FROM automation_tokens WHERE token_hash = $1
	`, hash).Scan(&tokenID, &userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrInvalidAutomationToken
		}
		return uuid.Nil, err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = s.pool.Exec(ctx, `UPDATE automation_tokens SET last_used_at = NOW() WHERE id = $1`, tokenID)
	}()

	return userID, nil
}
