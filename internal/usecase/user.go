package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
	"github.com/arklim/realm-auth-service/internal/infra/logger"
	"github.com/arklim/realm-auth-service/internal/infra/security"
	"github.com/arklim/realm-auth-service/internal/repository"
)

const (
	defaultUserCacheTTL = time.Hour
	maxIDAttempts       = 3

	subjectWelcome       = "Welcome to the Platform"
	subjectVerifyEmail   = "Verify Your Email"
	subjectPasswordReset = "Password Reset Request"

	templateRegistration  = "registration"
	templateVerifyEmail   = "email_verify"
	templatePasswordReset = "password_reset"

	otpMessageFormat = "Your OTP is %s. It is valid for 5 minutes."
)

var tracer = otel.Tracer("github.com/arklim/realm-auth-service/internal/usecase")

// CountryResolver maps a dial code to a country name.
type CountryResolver func(dialCode string) string

// UserDependencies groups the collaborators of a realm's UserService.
type UserDependencies struct {
	Users         port.UserRepository
	Cache         port.UserCache
	Emails        port.MembershipFilter
	Hasher        port.PasswordHasher
	Passwords     port.PasswordPolicyValidator
	Tokens        port.SessionTokenIssuer
	Links         port.URLTokenCodec
	Revocations   *RevocationChecker
	Notifications port.NotificationQueue
	Reporter      port.ErrorReporter
	Countries     CountryResolver
}

// UserService runs the account lifecycle of one realm:
// Unregistered -> Registered(unverified) -> Registered(verified) -> Deleted.
type UserService struct {
	realm         domain.Realm
	users         port.UserRepository
	cache         port.UserCache
	emails        port.MembershipFilter
	hasher        port.PasswordHasher
	passwords     port.PasswordPolicyValidator
	tokens        port.SessionTokenIssuer
	links         port.URLTokenCodec
	revocations   *RevocationChecker
	notifications port.NotificationQueue
	reporter      port.ErrorReporter
	countries     CountryResolver
	lookups       *prometheus.CounterVec
	baseURL       string
	cacheTTL      time.Duration
	newID         func() (string, error)
	newOTP        func() (string, error)
	now           func() time.Time
	logger        *zap.Logger
}

// NewUserService constructs the lifecycle manager for realm.
func NewUserService(realm domain.Realm, deps UserDependencies, baseURL string, cacheTTL time.Duration, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultUserCacheTTL
	}
	countries := deps.Countries
	if countries == nil {
		countries = func(string) string { return "" }
	}
	return &UserService{
		realm:         realm,
		users:         deps.Users,
		cache:         deps.Cache,
		emails:        deps.Emails,
		hasher:        deps.Hasher,
		passwords:     deps.Passwords,
		tokens:        deps.Tokens,
		links:         deps.Links,
		revocations:   deps.Revocations,
		notifications: deps.Notifications,
		reporter:      deps.Reporter,
		countries:     countries,
		baseURL:       strings.TrimRight(baseURL, "/"),
		cacheTTL:      cacheTTL,
		newID:         security.GenerateUserID,
		newOTP:        security.GenerateOTPCode,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        log.With(zap.String("realm", realm.Name)),
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *UserService) WithClock(clock func() time.Time) *UserService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithIDGenerator overrides user id generation.
func (s *UserService) WithIDGenerator(gen func() (string, error)) *UserService {
	if gen != nil {
		s.newID = gen
	}
	return s
}

// WithOTPGenerator overrides one-time code generation.
func (s *UserService) WithOTPGenerator(gen func() (string, error)) *UserService {
	if gen != nil {
		s.newOTP = gen
	}
	return s
}

// WithLookupCounter records cache-aside hits and misses under realm, key and result labels.
func (s *UserService) WithLookupCounter(counter *prometheus.CounterVec) *UserService {
	s.lookups = counter
	return s
}

// Realm returns the realm served by s.
func (s *UserService) Realm() domain.Realm {
	return s.realm
}

// Register creates an unverified account and queues the welcome and verification emails.
func (s *UserService) Register(ctx context.Context, profile domain.Profile) (domain.User, error) {
	ctx, span := s.start(ctx, "Register")
	defer span.End()

	email := domain.NormalizeEmail(profile.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.User{}, fmt.Errorf("%w: email is invalid", domain.ErrValidationFailed)
	}
	if strings.TrimSpace(profile.FirstName) == "" {
		return domain.User{}, fmt.Errorf("%w: first name is required", domain.ErrValidationFailed)
	}

	if err := s.ensureEmailAvailable(ctx, email); err != nil {
		return domain.User{}, err
	}

	if err := s.passwords.Validate(profile.Password); err != nil {
		return domain.User{}, err
	}
	hash, err := s.hasher.Hash(profile.Password)
	if err != nil {
		s.report(ctx, domain.SeverityHigh, fmt.Errorf("hash password: %w", err))
		return domain.User{}, fmt.Errorf("%w: hash password: %v", domain.ErrInternal, err)
	}

	countryCode := strings.TrimPrefix(strings.TrimSpace(profile.CountryCode), "+")
	now := s.now()
	user := domain.User{
		FirstName:    strings.TrimSpace(profile.FirstName),
		LastName:     strings.TrimSpace(profile.LastName),
		Email:        email,
		Phone:        strings.TrimSpace(profile.Phone),
		CountryCode:  countryCode,
		Country:      s.countries(countryCode),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.insertWithFreshID(ctx, &user); err != nil {
		return domain.User{}, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	s.populate(ctx, user)
	if err := s.emails.Add(ctx, email); err != nil {
		s.report(ctx, domain.SeverityWarning, fmt.Errorf("add registered email: %w", err))
	}

	s.enqueue(ctx, domain.NotificationJob{
		Kind:     domain.NotificationKindEmail,
		To:       email,
		Subject:  subjectWelcome,
		Template: templateRegistration,
		Context:  map[string]string{"name": user.FirstName},
	})
	verifyToken, err := s.links.Encode(domain.URLTokenClaims{
		Purpose: domain.TokenPurposeEmailVerify,
		UserID:  user.ID,
		Email:   email,
		Realm:   s.realm.Name,
	})
	if err != nil {
		s.report(ctx, domain.SeverityHigh, fmt.Errorf("encode verification token: %w", err), zap.String("user_id", user.ID))
	} else {
		s.enqueue(ctx, domain.NotificationJob{
			Kind:     domain.NotificationKindEmail,
			To:       email,
			Subject:  subjectVerifyEmail,
			Template: templateVerifyEmail,
			Context: map[string]string{
				"name":             user.FirstName,
				"verification_url": s.link("verify", verifyToken),
			},
		})
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("email", logger.MaskEmail(email)))
	return user, nil
}

// VerifyEmail marks the account named by a verification token as verified.
// Verifying an already verified account succeeds.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (bool, error) {
	ctx, span := s.start(ctx, "VerifyEmail")
	defer span.End()

	claims, err := s.decodeLink(token, domain.TokenPurposeEmailVerify)
	if err != nil {
		return false, err
	}

	user, err := s.lookupByID(ctx, claims.UserID)
	if err != nil {
		return false, err
	}

	if !user.EmailVerified {
		if err := s.users.UpdateVerified(ctx, user.ID, true); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return false, domain.ErrNotFound
			}
			s.report(ctx, domain.SeverityHigh, fmt.Errorf("update verified flag: %w", err), zap.String("user_id", user.ID))
			return false, fmt.Errorf("%w: update verified flag: %v", domain.ErrInternal, err)
		}
		user.EmailVerified = true
		user.UpdatedAt = s.now()
	}

	if err := s.cache.Invalidate(ctx, user.ID, user.Email); err != nil {
		s.report(ctx, domain.SeverityWarning, fmt.Errorf("invalidate cache after verify: %w", err), zap.String("user_id", user.ID))
	}
	if err := s.cache.SetByEmail(ctx, *user, s.cacheTTL); err != nil {
		s.report(ctx, domain.SeverityWarning, fmt.Errorf("repopulate cache after verify: %w", err), zap.String("user_id", user.ID))
	}

	return true, nil
}

// Login checks credentials and issues a session token for a verified account.
func (s *UserService) Login(ctx context.Context, email, password string) (string, domain.SessionClaims, error) {
	ctx, span := s.start(ctx, "Login")
	defer span.End()

	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return "", domain.SessionClaims{}, domain.ErrUnauthorized
	}

	user, err := s.lookupByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.SessionClaims{}, domain.ErrUnauthorized
		}
		return "", domain.SessionClaims{}, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.report(ctx, domain.SeverityWarning, fmt.Errorf("verify password: %w", err), zap.String("user_id", user.ID))
		return "", domain.SessionClaims{}, domain.ErrUnauthorized
	}
	if !ok {
		return "", domain.SessionClaims{}, domain.ErrUnauthorized
	}
	if !user.EmailVerified {
		return "", domain.SessionClaims{}, domain.ErrForbidden
	}

	token, claims, err := s.tokens.IssueSessionToken(domain.SessionClaims{
		UserID: user.ID,
		Email:  user.Email,
		Realm:  s.realm.Name,
	})
	if err != nil {
		s.report(ctx, domain.SeverityHigh, fmt.Errorf("issue session token: %w", err), zap.String("user_id", user.ID))
		return "", domain.SessionClaims{}, fmt.Errorf("%w: issue session token: %v", domain.ErrInternal, err)
	}
	return token, claims, nil
}

// Logout revokes the presented session token.
func (s *UserService) Logout(ctx context.Context, claims domain.SessionClaims) error {
	ctx, span := s.start(ctx, "Logout")
	defer span.End()

	if s.revocations == nil {
		return fmt.Errorf("%w: revocation checker not configured", domain.ErrInternal)
	}
	return s.revocations.Revoke(ctx, claims.JTI)
}

// GetProfile returns the account by id through the cache.
func (s *UserService) GetProfile(ctx context.Context, id string) (domain.User, error) {
	ctx, span := s.start(ctx, "GetProfile")
	defer span.End()

	user, err := s.lookupByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

// RequestPasswordReset queues a reset link for the account registered under email.
// The lookup bypasses the cache.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := s.start(ctx, "RequestPasswordReset")
	defer span.End()

	email = domain.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", domain.ErrValidationFailed)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return s.storeError(ctx, "find user by email", err)
	}

	token, err := s.links.Encode(domain.URLTokenClaims{
		Purpose: domain.TokenPurposePasswordReset,
		UserID:  user.ID,
		Email:   user.Email,
		Realm:   s.realm.Name,
	})
	if err != nil {
		s.report(ctx, domain.SeverityHigh, fmt.Errorf("encode reset token: %w", err), zap.String("user_id", user.ID))
		return fmt.Errorf("%w: encode reset token: %v", domain.ErrInternal, err)
	}

	s.enqueue(ctx, domain.NotificationJob{
		Kind:     domain.NotificationKindEmail,
		To:       user.Email,
		Subject:  subjectPasswordReset,
		Template: templatePasswordReset,
		Context: map[string]string{
			"name":      user.FirstName,
			"reset_url": s.link("reset_password_form", token),
		},
	})
	return nil
}

// ValidateResetToken checks a reset token without consuming it.
func (s *UserService) ValidateResetToken(ctx context.Context, token string) error {
	_, span := s.start(ctx, "ValidateResetToken")
	defer span.End()

	_, err := s.decodeLink(token, domain.TokenPurposePasswordReset)
	return err
}

// ResetPassword replaces the password of the account named by a reset token.
// Both cache entries are dropped so the next read sees the new hash.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx, span := s.start(ctx, "ResetPassword")
	defer span.End()

	claims, err := s.decodeLink(token, domain.TokenPurposePasswordReset)
	if err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return s.storeError(ctx, "find user by id", err)
	}

	if err := s.passwords.Validate(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.report(ctx, domain.SeverityHigh, fmt.Errorf("hash password: %w", err))
		return fmt.Errorf("%w: hash password: %v", domain.ErrInternal, err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return s.storeError(ctx, "update password", err)
	}

	if err := s.cache.Invalidate(ctx, user.ID, user.Email); err != nil {
		s.report(ctx, domain.SeverityHigh, fmt.Errorf("invalidate cache after reset: %w", err), zap.String("user_id", user.ID))
		return fmt.Errorf("%w: invalidate cache: %v", domain.ErrInternal, err)
	}

	s.logger.Info("password reset", zap.String("user_id", user.ID))
	return nil
}

// Delete removes the account. Cache entries are dropped before the store is touched.
func (s *UserService) Delete(ctx context.Context, id, email string) error {
	ctx, span := s.start(ctx, "Delete")
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", domain.ErrValidationFailed)
	}

	if err := s.cache.Invalidate(ctx, id, domain.NormalizeEmail(email)); err != nil {
		s.report(ctx, domain.SeverityHigh, fmt.Errorf("invalidate cache before delete: %w", err), zap.String("user_id", id))
		return fmt.Errorf("%w: invalidate cache: %v", domain.ErrInternal, err)
	}

	if _, err := s.users.FindByID(ctx, id); err != nil {
		return s.storeError(ctx, "find user by id", err)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return s.storeError(ctx, "delete user", err)
	}

	s.logger.Info("user deleted", zap.String("user_id", id))
	return nil
}

// GenerateOTP texts a fresh code to phone and returns the token that binds it.
// The code itself is never returned. An empty phone falls back to the stored number.
func (s *UserService) GenerateOTP(ctx context.Context, id, phone string) (string, error) {
	ctx, span := s.start(ctx, "GenerateOTP")
	defer span.End()

	user, err := s.lookupByID(ctx, id)
	if err != nil {
		return "", err
	}

	phone = strings.TrimSpace(phone)
	if phone == "" && user.Phone != "" {
		phone = "+" + user.CountryCode + user.Phone
	}
	if phone == "" {
		return "", fmt.Errorf("%w: phone is required", domain.ErrValidationFailed)
	}

	code, err := s.newOTP()
	if err != nil {
		s.report(ctx, domain.SeverityHigh, fmt.Errorf("generate otp: %w", err))
		return "", fmt.Errorf("%w: generate otp: %v", domain.ErrInternal, err)
	}
	token, err := s.tokens.IssueOTPToken(code)
	if err != nil {
		s.report(ctx, domain.SeverityHigh, fmt.Errorf("issue otp token: %w", err))
		return "", fmt.Errorf("%w: issue otp token: %v", domain.ErrInternal, err)
	}

	s.enqueue(ctx, domain.NotificationJob{
		Kind: domain.NotificationKindSMS,
		To:   phone,
		Body: fmt.Sprintf(otpMessageFormat, code),
	})
	return token, nil
}

// VerifyOTP compares code with the one bound into token.
// Tokens are stateless, so a token verifies repeatedly until it expires.
func (s *UserService) VerifyOTP(ctx context.Context, token, code string) (bool, error) {
	_, span := s.start(ctx, "VerifyOTP")
	defer span.End()

	expected, err := s.tokens.ValidateOTPToken(token)
	if err != nil {
		return false, err
	}

	code = strings.TrimSpace(code)
	if len(code) != domain.OTPLength || subtle.ConstantTimeCompare([]byte(code), []byte(expected)) != 1 {
		return false, fmt.Errorf("%w: otp mismatch", domain.ErrValidationFailed)
	}
	return true, nil
}

func (s *UserService) ensureEmailAvailable(ctx context.Context, email string) error {
	if s.emails.Contains(email) {
		_, err := s.lookupByEmail(ctx, email)
		switch {
		case err == nil:
			return domain.ErrConflict
		case errors.Is(err, domain.ErrNotFound):
			return nil
		default:
			return err
		}
	}

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if addErr := s.emails.Add(ctx, email); addErr != nil {
			s.report(ctx, domain.SeverityWarning, fmt.Errorf("backfill registered email: %w", addErr))
		}
		return domain.ErrConflict
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return s.storeError(ctx, "find user by email", err)
	}
}

func (s *UserService) insertWithFreshID(ctx context.Context, user *domain.User) error {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.newID()
		if err != nil {
			s.report(ctx, domain.SeverityHigh, fmt.Errorf("generate user id: %w", err))
			return fmt.Errorf("%w: generate user id: %v", domain.ErrInternal, err)
		}
		user.ID = id

		err = s.users.Insert(ctx, *user)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return s.storeError(ctx, "insert user", err)
		}

		if _, findErr := s.users.FindByEmail(ctx, user.Email); findErr == nil {
			return domain.ErrConflict
		}
		s.logger.Warn("user id collision, retrying", zap.Int("attempt", attempt+1))
	}
	err := fmt.Errorf("%w: no free user id after %d attempts", domain.ErrInternal, maxIDAttempts)
	s.report(ctx, domain.SeverityHigh, err)
	return err
}

func (s *UserService) lookupByID(ctx context.Context, id string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrNotFound
	}
	return s.cacheAside(ctx, "id",
		func() (*domain.User, error) { return s.cache.GetByID(ctx, id) },
		func() (*domain.User, error) { return s.users.FindByID(ctx, id) },
		func(u domain.User) error { return s.cache.SetByID(ctx, u, s.cacheTTL) },
	)
}

func (s *UserService) lookupByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.cacheAside(ctx, "email",
		func() (*domain.User, error) { return s.cache.GetByEmail(ctx, email) },
		func() (*domain.User, error) { return s.users.FindByEmail(ctx, email) },
		func(u domain.User) error { return s.cache.SetByEmail(ctx, u, s.cacheTTL) },
	)
}

// cacheAside reads through the cache to the store and repopulates on a miss.
// Cache failures degrade to a miss.
func (s *UserService) cacheAside(ctx context.Context, key string, get, load func() (*domain.User, error), set func(domain.User) error) (*domain.User, error) {
	user, err := get()
	switch {
	case err == nil:
		s.countLookup(key, "hit")
		return user, nil
	case errors.Is(err, repository.ErrNotFound):
		s.countLookup(key, "miss")
	default:
		s.countLookup(key, "error")
		s.report(ctx, domain.SeverityWarning, fmt.Errorf("user cache read: %w", err), zap.String("key", key))
	}

	user, err = load()
	if err != nil {
		return nil, s.storeError(ctx, "find user by "+key, err)
	}
	if err := set(*user); err != nil {
		s.report(ctx, domain.SeverityWarning, fmt.Errorf("user cache write: %w", err), zap.String("key", key))
	}
	return user, nil
}

// populate writes both cache entries of a freshly stored user.
func (s *UserService) populate(ctx context.Context, user domain.User) {
	if err := s.cache.SetByID(ctx, user, s.cacheTTL); err != nil {
		s.report(ctx, domain.SeverityWarning, fmt.Errorf("cache user by id: %w", err), zap.String("user_id", user.ID))
	}
	if err := s.cache.SetByEmail(ctx, user, s.cacheTTL); err != nil {
		s.report(ctx, domain.SeverityWarning, fmt.Errorf("cache user by email: %w", err), zap.String("user_id", user.ID))
	}
}

func (s *UserService) decodeLink(token string, purpose domain.TokenPurpose) (domain.URLTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.URLTokenClaims{}, domain.ErrInvalidToken
	}
	claims, err := s.links.Decode(token, purpose)
	if err != nil {
		return domain.URLTokenClaims{}, err
	}
	if claims.Realm != s.realm.Name {
		return domain.URLTokenClaims{}, fmt.Errorf("%w: token issued for another realm", domain.ErrInvalidToken)
	}
	return claims, nil
}

// storeError maps a credential store failure onto the error taxonomy.
func (s *UserService) storeError(ctx context.Context, op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ErrNotFound
	}
	s.report(ctx, domain.SeverityHigh, fmt.Errorf("%s: %w", op, err))
	return fmt.Errorf("%w: %s: %v", domain.ErrInternal, op, err)
}

func (s *UserService) enqueue(ctx context.Context, job domain.NotificationJob) {
	if s.notifications == nil {
		return
	}
	job.ID = uuid.NewString()
	job.Realm = s.realm.Name
	job.EnqueuedAt = s.now()
	if err := s.notifications.Enqueue(ctx, job); err != nil {
		s.report(ctx, domain.SeverityWarning, fmt.Errorf("enqueue notification: %w", err),
			zap.String("kind", string(job.Kind)), zap.String("template", job.Template))
	}
}

func (s *UserService) link(path, token string) string {
	return s.baseURL + s.realm.RoutePrefix + "/" + path + "?token=" + url.QueryEscape(token)
}

func (s *UserService) countLookup(key, result string) {
	if s.lookups != nil {
		s.lookups.WithLabelValues(s.realm.Name, key, result).Inc()
	}
}

func (s *UserService) report(ctx context.Context, severity domain.Severity, err error, fields ...zap.Field) {
	if s.reporter != nil {
		s.reporter.Report(ctx, severity, "user."+strings.ToLower(s.realm.Name), err, fields...)
		return
	}
	s.logger.Warn("user service error", append(fields, zap.Error(err))...)
}

func (s *UserService) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "UserService."+op, trace.WithAttributes(attribute.String("realm", s.realm.Name)))
}
