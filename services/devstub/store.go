package devstub

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/uniteams/uniteams/core/auth"
)

// account is a registered credential holder. Profile rows live in the
// profile repository; the account only carries what the auth surface owns.
type account struct {
	ID             string
	Email          string
	PasswordHash   []byte
	Metadata       auth.Metadata
	EmailConfirmed bool
	CreatedAt      time.Time
	LastLogin      time.Time
}

func (acc account) identity() auth.Identity {
	return auth.Identity{
		ID:             acc.ID,
		Email:          acc.Email,
		EmailConfirmed: acc.EmailConfirmed,
		Metadata:       acc.Metadata,
		CreatedAt:      acc.CreatedAt,
	}
}

func (acc account) checkPassword(pwd string) bool {
	return bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(pwd)) == nil
}

// accountStore keeps accounts and live refresh tokens in memory.
type accountStore struct {
	mu       sync.Mutex
	byID     map[string]*account
	byEmail  map[string]*account
	refresh  map[string]string // refresh token -> account ID
	nowFunc  func() time.Time
	hashCost int
}

func newAccountStore() *accountStore {
	return &accountStore{
		byID:     make(map[string]*account),
		byEmail:  make(map[string]*account),
		refresh:  make(map[string]string),
		nowFunc:  time.Now,
		hashCost: bcrypt.MinCost, // dev only
	}
}

func (st *accountStore) create(email, password string, meta auth.Metadata, confirmed bool) (account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.byEmail[email]; ok {
		return account{}, auth.ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), st.hashCost)
	if err != nil {
		return account{}, err
	}
	acc := &account{
		ID:             uuid.New().String(),
		Email:          email,
		PasswordHash:   hash,
		Metadata:       meta,
		EmailConfirmed: confirmed,
		CreatedAt:      st.nowFunc().UTC(),
	}
	st.byID[acc.ID] = acc
	st.byEmail[acc.Email] = acc
	return *acc, nil
}

func (st *accountStore) getByEmail(email string) (account, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	acc, ok := st.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return account{}, false
	}
	return *acc, true
}

func (st *accountStore) getByID(id string) (account, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	acc, ok := st.byID[id]
	if !ok {
		return account{}, false
	}
	return *acc, true
}

func (st *accountStore) confirm(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	acc, ok := st.byID[id]
	if !ok {
		return false
	}
	acc.EmailConfirmed = true
	return true
}

func (st *accountStore) touchLogin(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if acc, ok := st.byID[id]; ok {
		acc.LastLogin = st.nowFunc().UTC()
	}
}

func (st *accountStore) update(id string, email, password string, meta *auth.Metadata) (account, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	acc, ok := st.byID[id]
	if !ok {
		return account{}, auth.ErrNotAuthenticated
	}
	if email != "" {
		email = strings.ToLower(strings.TrimSpace(email))
		if other, taken := st.byEmail[email]; taken && other.ID != id {
			return account{}, auth.ErrEmailExists
		}
		delete(st.byEmail, acc.Email)
		acc.Email = email
		st.byEmail[email] = acc
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), st.hashCost)
		if err != nil {
			return account{}, err
		}
		acc.PasswordHash = hash
	}
	if meta != nil {
		acc.Metadata = *meta
	}
	return *acc, nil
}

// issueRefreshToken mints a single-use refresh token for the account.
func (st *accountStore) issueRefreshToken(accountID string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	token := uuid.New().String()
	st.refresh[token] = accountID
	return token
}

// redeemRefreshToken consumes token and returns the account it belongs to.
func (st *accountStore) redeemRefreshToken(token string) (account, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	id, ok := st.refresh[token]
	if !ok {
		return account{}, false
	}
	delete(st.refresh, token)
	acc, ok := st.byID[id]
	if !ok {
		return account{}, false
	}
	return *acc, true
}

// revokeRefreshTokens drops every live refresh token for the account.
func (st *accountStore) revokeRefreshTokens(accountID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for token, id := range st.refresh {
		if id == accountID {
			delete(st.refresh, token)
		}
	}
}
