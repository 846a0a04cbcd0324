package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/repository"
)

type memUserRepository struct {
	mu          sync.Mutex
	byID        map[string]domain.User
	insertCalls int
	findErr     error
	updateErr   error
}

func newMemUserRepository() *memUserRepository {
	return &memUserRepository{byID: map[string]domain.User{}}
}

func (r *memUserRepository) Insert(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if _, ok := r.byID[user.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.byID {
		if existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.byID[user.ID] = user
	return nil
}

func (r *memUserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	user, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *memUserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, user := range r.byID {
		if user.Email == domain.NormalizeEmail(email) {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepository) UpdateVerified(_ context.Context, id string, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	user, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailVerified = verified
	r.byID[id] = user
	return nil
}

func (r *memUserRepository) UpdatePassword(_ context.Context, id string, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	user, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	r.byID[id] = user
	return nil
}

func (r *memUserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

type memUserCache struct {
	mu              sync.Mutex
	byID            map[string]domain.User
	byEmail         map[string]domain.User
	getErr          error
	invalidateErr   error
	invalidateCalls int
}

func newMemUserCache() *memUserCache {
	return &memUserCache{byID: map[string]domain.User{}, byEmail: map[string]domain.User{}}
}

func (c *memUserCache) GetByID(_ context.Context, id string) (*domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	user, ok := c.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (c *memUserCache) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	user, ok := c.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (c *memUserCache) SetByID(_ context.Context, user domain.User, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[user.ID] = user
	return nil
}

func (c *memUserCache) SetByEmail(_ context.Context, user domain.User, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byEmail[user.Email] = user
	return nil
}

func (c *memUserCache) Invalidate(_ context.Context, id, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateCalls++
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	delete(c.byID, id)
	delete(c.byEmail, email)
	return nil
}

type setFilter struct {
	mu     sync.Mutex
	items  map[string]struct{}
	addErr error
}

func newSetFilter() *setFilter {
	return &setFilter{items: map[string]struct{}{}}
}

func (f *setFilter) Add(_ context.Context, item string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.items[item] = struct{}{}
	return nil
}

func (f *setFilter) Contains(item string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[item]
	return ok
}

// plainHasher keeps tests fast; the argon2 hasher has its own tests.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "plain$" + password, nil
}

func (plainHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "plain$"+password, nil
}

type minLengthPolicy struct{}

func (minLengthPolicy) Validate(password string) error {
	if len(password) < 8 {
		return domain.ErrValidationFailed
	}
	return nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []domain.NotificationJob
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job domain.NotificationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) bySubject(subject string) (domain.NotificationJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.jobs) - 1; i >= 0; i-- {
		if q.jobs[i].Subject == subject {
			return q.jobs[i], true
		}
	}
	return domain.NotificationJob{}, false
}

type reportedError struct {
	severity  domain.Severity
	component string
	err       error
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []reportedError
}

func (r *recordingReporter) Report(_ context.Context, severity domain.Severity, component string, err error, _ ...zap.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, reportedError{severity: severity, component: component, err: err})
}

func (r *recordingReporter) count(severity domain.Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rep := range r.reports {
		if rep.severity == severity {
			n++
		}
	}
	return n
}

type memRevocationStore struct {
	mu       sync.Mutex
	expiry   map[string]time.Time
	now      func() time.Time
	markErr  error
	checkErr error
}

func newMemRevocationStore(now func() time.Time) *memRevocationStore {
	return &memRevocationStore{expiry: map[string]time.Time{}, now: now}
}

func (s *memRevocationStore) MarkRevoked(_ context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.expiry[jti] = s.now().Add(ttl)
	return nil
}

func (s *memRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkErr != nil {
		return false, s.checkErr
	}
	exp, ok := s.expiry[jti]
	return ok && s.now().Before(exp), nil
}

type recordingPublisher struct {
	events []domain.TokenRevokedEvent
	err    error
}

func (p *recordingPublisher) PublishTokenRevoked(_ context.Context, event domain.TokenRevokedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

// tokenFromURL extracts the token query parameter from an emailed link.
func tokenFromURL(link string) string {
	_, query, ok := strings.Cut(link, "?token=")
	if !ok {
		return ""
	}
	return query
}

var errBoom = errors.New("boom")
