// Package token owns the OAuth token lifecycle for every (user, provider)
// connection: validity checks, single-shot refresh, and refresh-failure
// classification.
package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/cloudintake/sentinel/internal/db/models"
	"github.com/cloudintake/sentinel/internal/health"
)

// expirySkew treats tokens expiring this soon as already expired, so a token
// handed to a slow upload does not die mid-request.
const expirySkew = time.Minute

var (
	// ErrNotConnected means no authorization exists for the pair.
	ErrNotConnected = errors.New("token: provider not connected")
	// ErrReauthRequired means the refresh token is permanently invalid and
	// only a user-initiated OAuth re-authorization can recover.
	ErrReauthRequired = errors.New("token: re-authorization required")
)

// Refresher exchanges a refresh token for a fresh access token. One is
// registered per provider family.
type Refresher func(ctx context.Context, refreshToken string) (*oauth2.Token, error)

// Manager is the only mutator of Account token fields.
type Manager struct {
	db         *gorm.DB
	tracker    *health.Tracker
	refreshers map[string]Refresher

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewManager creates a token manager over the shared database.
func NewManager(gdb *gorm.DB, tracker *health.Tracker) *Manager {
	return &Manager{
		db:         gdb,
		tracker:    tracker,
		refreshers: make(map[string]Refresher),
		locks:      make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

// RegisterRefresher binds a provider family to its refresh endpoint.
func (m *Manager) RegisterRefresher(provider string, r Refresher) {
	m.refreshers[provider] = r
}

// lockFor serializes refresh per pair: two workers discovering an expired
// token at once must not both hit the refresh endpoint.
func (m *Manager) lockFor(userID, prov string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "|" + prov
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// EnsureValidToken returns a usable access token for the pair. An unexpired
// stored token is returned without any network call; an expired one triggers
// exactly one refresh attempt. Retrying a failed refresh is the caller's
// backoff decision, not ours.
func (m *Manager) EnsureValidToken(ctx context.Context, userID, prov string) (string, error) {
	l := m.lockFor(userID, prov)
	l.Lock()
	defer l.Unlock()

	var account models.Account
	err := m.db.Where("user_id = ? AND provider = ?", userID, prov).First(&account).Error
	if err == gorm.ErrRecordNotFound {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", fmt.Errorf("load account: %w", err)
	}

	if account.ExpiresAt.After(m.now().Add(expirySkew)) {
		return account.AccessToken, nil
	}

	return m.refresh(ctx, &account)
}

// refresh performs the single refresh attempt and persists the outcome.
// Caller holds the pair lock.
func (m *Manager) refresh(ctx context.Context, account *models.Account) (string, error) {
	refresher, ok := m.refreshers[account.Provider]
	if !ok {
		return "", fmt.Errorf("no refresher registered for provider %q", account.Provider)
	}

	newToken, err := refresher(ctx, account.RefreshToken)
	if err != nil {
		if isPermanentRefreshError(err) {
			log.Printf("[Token] Permanent refresh failure for %s/%s: %v", account.UserID, account.Provider, err)
			if _, herr := m.tracker.RecordRefreshOutcome(account.UserID, account.Provider, health.RefreshPermanentFailure); herr != nil {
				log.Printf("[Token] Failed to record refresh outcome: %v", herr)
			}
			return "", fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}

		log.Printf("[Token] Transient refresh failure for %s/%s: %v", account.UserID, account.Provider, err)
		if _, herr := m.tracker.RecordRefreshOutcome(account.UserID, account.Provider, health.RefreshTransientFailure); herr != nil {
			log.Printf("[Token] Failed to record refresh outcome: %v", herr)
		}
		return "", fmt.Errorf("token refresh: %w", err)
	}

	account.AccessToken = newToken.AccessToken
	account.ExpiresAt = newToken.Expiry
	if newToken.TokenType != "" {
		account.TokenType = newToken.TokenType
	}
	// Providers may omit the refresh token on rotation responses; the
	// stored value must survive in that case.
	if newToken.RefreshToken != "" && newToken.RefreshToken != account.RefreshToken {
		log.Printf("[Token] Rotating refresh token for %s/%s", account.UserID, account.Provider)
		account.RefreshToken = newToken.RefreshToken
	}

	if err := m.db.Save(account).Error; err != nil {
		return "", fmt.Errorf("save refreshed token: %w", err)
	}

	if _, herr := m.tracker.RecordRefreshOutcome(account.UserID, account.Provider, health.RefreshSuccess); herr != nil {
		log.Printf("[Token] Failed to record refresh outcome: %v", herr)
	}

	return account.AccessToken, nil
}

// StoreAuthorization upserts the account after a successful OAuth exchange,
// preserving the record ID of an existing connection.
func (m *Manager) StoreAuthorization(userID, prov, email string, tok *oauth2.Token, scopes []string) (*models.Account, error) {
	l := m.lockFor(userID, prov)
	l.Lock()
	defer l.Unlock()

	var account models.Account
	err := m.db.Where("user_id = ? AND provider = ?", userID, prov).First(&account).Error
	if err == gorm.ErrRecordNotFound {
		account = models.Account{
			ID:       uuid.New().String(),
			UserID:   userID,
			Provider: prov,
		}
	} else if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	account.Email = email
	account.AccessToken = tok.AccessToken
	account.ExpiresAt = tok.Expiry
	account.TokenType = tok.TokenType
	if tok.RefreshToken != "" {
		account.RefreshToken = tok.RefreshToken
	}
	account.Scopes = strings.Join(scopes, " ")

	if err := m.db.Save(&account).Error; err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	return &account, nil
}

// Disconnect removes the stored authorization for the pair. This is the only
// path that deletes a token record.
func (m *Manager) Disconnect(userID, prov string) error {
	l := m.lockFor(userID, prov)
	l.Lock()
	defer l.Unlock()

	return m.db.Where("user_id = ? AND provider = ?", userID, prov).
		Delete(&models.Account{}).Error
}

// AllAccounts lists every stored connection.
func (m *Manager) AllAccounts() ([]models.Account, error) {
	var accounts []models.Account
	err := m.db.Find(&accounts).Error
	return accounts, err
}

// isPermanentRefreshError distinguishes revoked/expired grants from network
// blips. Marker strings cover the wording the OAuth endpoint actually uses.
func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
