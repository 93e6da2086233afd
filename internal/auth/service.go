// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/natours/natours/internal/docstore"
	"github.com/natours/natours/internal/mail"
	"github.com/natours/natours/internal/schema"
	"github.com/natours/natours/pkg/errutil"
)

// MinPasswordLen is the shortest password accepted.
const MinPasswordLen = 8

// Client-facing messages.
const (
	msgNotLoggedIn        = "You are not logged in! Please log in to get access."
	msgInvalidToken       = "Invalid token. Please log in again!"
	msgExpiredToken       = "Your token has expired! Please log in again."
	msgIdentityGone       = "The user belonging to this token no longer exists."
	msgPasswordChanged    = "User recently changed password! Please log in again."
	msgBadCredentials     = "Incorrect email or password"
	msgMissingCredentials = "Please provide email and password!"
	msgNoSuchEmail        = "There is no user with that email address."
	msgResetInvalid       = "Token is invalid or has expired"
	msgWrongPassword      = "Your current password is wrong."
	msgEmailTaken         = "That email address is already registered."
	msgMailFailed         = "There was an error sending the email. Try again later!"
	msgNotForPasswords    = "This route is not for password updates. Please use /updateMyPassword."
)

// SignupInput is the self-registration payload.
type SignupInput struct {
	Name            string `json:"name" jsonschema:"required,minLength=1,maxLength=80"`
	Email           string `json:"email" jsonschema:"required,format=email"`
	Photo           string `json:"photo,omitempty"`
	Password        string `json:"password" jsonschema:"required,minLength=8"`
	PasswordConfirm string `json:"passwordConfirm" jsonschema:"required"`
}

// LoginInput carries credentials.
type LoginInput struct {
	Email    string `json:"email" jsonschema:"required,format=email"`
	Password string `json:"password" jsonschema:"required"`
}

// ForgotPasswordInput requests a reset link.
type ForgotPasswordInput struct {
	Email string `json:"email" jsonschema:"required,format=email"`
}

// ResetPasswordInput sets a new password with a reset token from the URL.
type ResetPasswordInput struct {
	Password        string `json:"password" jsonschema:"required,minLength=8"`
	PasswordConfirm string `json:"passwordConfirm" jsonschema:"required"`
}

// UpdatePasswordInput changes the password of the logged-in identity.
type UpdatePasswordInput struct {
	PasswordCurrent string `json:"passwordCurrent" jsonschema:"required"`
	Password        string `json:"password" jsonschema:"required,minLength=8"`
	PasswordConfirm string `json:"passwordConfirm" jsonschema:"required"`
}

// ServiceConfig holds the dependencies of a Service.
type ServiceConfig struct {
	Store  *IdentityStore
	Hasher PasswordHasher
	Tokens *TokenService
	Mailer mail.Mailer
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// AppURL is used in the welcome mail.
	AppURL string
}

// Service implements registration, login and password management.
type Service struct {
	store     *IdentityStore
	hasher    PasswordHasher
	tokens    *TokenService
	mailer    mail.Mailer
	logger    *slog.Logger
	now       func() time.Time
	appURL    string
	dummyHash string
}

// NewService validates cfg and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	switch {
	case cfg.Store == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("identity store is required")
	case cfg.Hasher == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("password hasher is required")
	case cfg.Tokens == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token service is required")
	case cfg.Mailer == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("mailer is required")
	case cfg.Logger == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("logger is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	// Unknown emails are verified against dummy so both login paths cost
	// the same.
	dummy, err := cfg.Hasher.Hash("never-a-real-password")
	if err != nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").Wrap(err)
	}
	return &Service{
		store:     cfg.Store,
		hasher:    cfg.Hasher,
		tokens:    cfg.Tokens,
		mailer:    cfg.Mailer,
		logger:    cfg.Logger,
		now:       cfg.Now,
		appURL:    cfg.AppURL,
		dummyHash: dummy,
	}, nil
}

// Tokens returns the token service.
func (s *Service) Tokens() *TokenService { return s.tokens }

func checkNewPassword(password, confirm string) error {
	var errs []schema.FieldError
	switch {
	case password == "":
		errs = append(errs, schema.FieldError{Field: "password", Message: "is required"})
	case len(password) < MinPasswordLen:
		errs = append(errs, schema.FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	switch {
	case confirm == "":
		errs = append(errs, schema.FieldError{Field: "passwordConfirm", Message: "is required"})
	case password != "" && password != confirm:
		errs = append(errs, schema.FieldError{Field: "passwordConfirm", Message: "passwords are not the same"})
	}
	if len(errs) == 0 {
		return nil
	}
	return oops.Code("AUTH_PASSWORD_INVALID").Wrap(errutil.Classify(errutil.KindValidation,
		&schema.ValidationError{Resource: UserSchema.Name(), Errors: errs}))
}

// passwordPatch hashes password and stamps passwordChangedAt one second in
// the past, so a token issued right after the change stays valid.
func (s *Service) passwordPatch(password string) (docstore.Document, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return docstore.Document{
		FieldPassword:          hash,
		FieldPasswordChangedAt: schema.FormatTime(s.now().Add(-time.Second)),
	}, nil
}

func (s *Service) issue(id *Identity) (string, error) {
	token, err := s.tokens.Issue(id.ID)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("identity_id", id.ID).Wrap(err)
	}
	return token, nil
}

func conflictOrFail(code string, err error) error {
	if errors.Is(err, docstore.ErrDuplicate) {
		return oops.Code("IDENTITY_EMAIL_TAKEN").Wrap(errutil.Wrap(errutil.KindConflict, msgEmailTaken, err))
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return oops.Code(code).Wrap(errutil.Classify(errutil.KindValidation, verr))
	}
	return oops.Code(code).Wrap(err)
}

// Register creates an identity with role user and returns it with a
// session token.
func (s *Service) Register(ctx context.Context, in SignupInput) (*Identity, string, error) {
	if err := checkNewPassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, "", err
	}
	pw, err := s.passwordPatch(in.Password)
	if err != nil {
		return nil, "", err
	}

	doc := docstore.Document{
		FieldName:     in.Name,
		FieldEmail:    NormalizeEmail(in.Email),
		FieldRole:     string(RoleUser),
		FieldPassword: pw[FieldPassword],
		FieldActive:   true,
	}
	if in.Photo != "" {
		doc[FieldPhoto] = in.Photo
	}
	UserSchema.ApplyDefaults(doc)
	if err := UserSchema.Validate(doc); err != nil {
		return nil, "", conflictOrFail("AUTH_SIGNUP_INVALID", err)
	}

	id, err := s.store.Create(ctx, doc)
	if err != nil {
		return nil, "", conflictOrFail("AUTH_SIGNUP_FAILED", err)
	}
	token, err := s.issue(id)
	if err != nil {
		return nil, "", err
	}

	msg, err := mail.Welcome(mail.Recipient{Name: id.Name, Email: id.Email}, s.appURL)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		errutil.LogOperational(s.logger, "welcome email not sent", err)
	}
	return id, token, nil
}

// Login checks credentials and returns the identity with a session token.
// Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*Identity, string, error) {
	if email == "" || password == "" {
		return nil, "", oops.Code("AUTH_CREDENTIALS_MISSING").
			Wrap(errutil.New(errutil.KindValidation, msgMissingCredentials))
	}

	id, lookupErr := s.store.ByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrIdentityNotFound) {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").With("operation", "get identity by email").Wrap(lookupErr)
	}

	target := s.dummyHash
	if id != nil {
		target = id.PasswordHash
	}
	// Always verify password (constant-time operation for timing attack prevention)
	valid, verifyErr := s.hasher.Verify(password, target)
	if id != nil && verifyErr != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").With("operation", "verify password").Wrap(verifyErr)
	}
	if id == nil || !valid {
		return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").
			Wrap(errutil.New(errutil.KindUnauthenticated, msgBadCredentials))
	}

	if s.hasher.NeedsUpgrade(id.PasswordHash) {
		if hash, err := s.hasher.Hash(password); err == nil {
			if _, err := s.store.Update(ctx, id.ID, docstore.Document{FieldPassword: hash}); err != nil {
				errutil.LogOperational(s.logger, "password hash upgrade failed", err)
			}
		}
	}

	token, err := s.issue(id)
	if err != nil {
		return nil, "", err
	}
	return id, token, nil
}

// Authenticate resolves a session token to the active identity it was
// issued for.
func (s *Service) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, oops.Code("AUTH_NOT_LOGGED_IN").Wrap(errutil.New(errutil.KindUnauthenticated, msgNotLoggedIn))
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		msg := msgInvalidToken
		if errors.Is(err, ErrExpiredToken) {
			msg = msgExpiredToken
		}
		return nil, oops.Code("AUTH_TOKEN_REJECTED").Wrap(errutil.Wrap(errutil.KindUnauthenticated, msg, err))
	}

	id, err := s.store.ByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, oops.Code("AUTH_IDENTITY_GONE").With("identity_id", claims.IdentityID).
				Wrap(errutil.Wrap(errutil.KindUnauthenticated, msgIdentityGone, err))
		}
		return nil, oops.Code("AUTH_AUTHENTICATE_FAILED").With("identity_id", claims.IdentityID).Wrap(err)
	}
	if id.ChangedPasswordAfter(claims.IssuedAt) {
		return nil, oops.Code("AUTH_PASSWORD_CHANGED").
			With("identity_id", id.ID).
			With("issued_at", claims.IssuedAt).
			With("password_changed_at", id.PasswordChangedAt).
			Wrap(errutil.New(errutil.KindUnauthenticated, msgPasswordChanged))
	}
	return id, nil
}

// ForgotPassword stores a fresh reset token for email and mails the link
// resetURLBase/<token>. When delivery fails the token is cleared again.
//
// An unknown email answers NotFound, which tells callers whether an
// address is registered.
func (s *Service) ForgotPassword(ctx context.Context, email, resetURLBase string) error {
	id, err := s.store.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return oops.Code("AUTH_RESET_UNKNOWN_EMAIL").Wrap(errutil.Wrap(errutil.KindNotFound, msgNoSuchEmail, err))
		}
		return oops.Code("AUTH_RESET_FAILED").Wrap(err)
	}

	token, hash, expires, err := CreateResetToken(s.now())
	if err != nil {
		return oops.Code("AUTH_RESET_FAILED").Wrap(err)
	}
	if _, err := s.store.Update(ctx, id.ID, docstore.Document{
		FieldPasswordResetToken:   hash,
		FieldPasswordResetExpires: schema.FormatTime(expires),
	}); err != nil {
		return oops.Code("AUTH_RESET_FAILED").With("identity_id", id.ID).Wrap(err)
	}

	link, err := url.JoinPath(resetURLBase, token)
	if err == nil {
		var msg mail.Message
		msg, err = mail.PasswordReset(mail.Recipient{Name: id.Name, Email: id.Email}, link, "10 minutes")
		if err == nil {
			err = s.mailer.Send(ctx, msg)
		}
	}
	if err != nil {
		if _, clearErr := s.store.Update(ctx, id.ID, docstore.Document{
			FieldPasswordResetToken:   nil,
			FieldPasswordResetExpires: nil,
		}); clearErr != nil {
			errutil.LogError(s.logger, "clearing reset token failed", clearErr)
		}
		return oops.Code("AUTH_RESET_MAIL_FAILED").With("identity_id", id.ID).
			Wrap(errutil.Wrap(errutil.KindInternal, msgMailFailed, err))
	}
	return nil
}

// ResetPassword sets a new password for the identity holding token and
// returns a fresh session token.
func (s *Service) ResetPassword(ctx context.Context, token string, in ResetPasswordInput) (*Identity, string, error) {
	invalid := func(err error) error {
		return oops.Code("AUTH_RESET_TOKEN_INVALID").Wrap(errutil.Wrap(errutil.KindValidation, msgResetInvalid, err))
	}
	if token == "" {
		return nil, "", invalid(ErrInvalidToken)
	}
	id, err := s.store.ByResetTokenHash(ctx, HashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, "", invalid(err)
		}
		return nil, "", oops.Code("AUTH_RESET_FAILED").Wrap(err)
	}
	if !VerifyResetToken(token, id.ResetTokenHash, id.ResetExpires, s.now()) {
		return nil, "", invalid(ErrExpiredToken)
	}
	if err := checkNewPassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, "", err
	}

	patch, err := s.passwordPatch(in.Password)
	if err != nil {
		return nil, "", err
	}
	patch[FieldPasswordResetToken] = nil
	patch[FieldPasswordResetExpires] = nil
	updated, err := s.store.Update(ctx, id.ID, patch)
	if err != nil {
		return nil, "", oops.Code("AUTH_RESET_FAILED").With("identity_id", id.ID).Wrap(err)
	}
	tok, err := s.issue(updated)
	if err != nil {
		return nil, "", err
	}
	return updated, tok, nil
}

// UpdatePassword changes the password of id after checking the current
// one, and returns a fresh session token.
func (s *Service) UpdatePassword(ctx context.Context, id *Identity, in UpdatePasswordInput) (*Identity, string, error) {
	current, err := s.store.ByID(ctx, id.ID)
	if err != nil {
		return nil, "", oops.Code("AUTH_UPDATE_PASSWORD_FAILED").Wrap(err)
	}
	ok, err := s.hasher.Verify(in.PasswordCurrent, current.PasswordHash)
	if err != nil {
		return nil, "", oops.Code("AUTH_UPDATE_PASSWORD_FAILED").With("identity_id", id.ID).Wrap(err)
	}
	if !ok {
		return nil, "", oops.Code("AUTH_WRONG_PASSWORD").With("identity_id", id.ID).
			Wrap(errutil.New(errutil.KindUnauthenticated, msgWrongPassword))
	}
	if err := checkNewPassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, "", err
	}

	patch, err := s.passwordPatch(in.Password)
	if err != nil {
		return nil, "", err
	}
	updated, err := s.store.Update(ctx, id.ID, patch)
	if err != nil {
		return nil, "", oops.Code("AUTH_UPDATE_PASSWORD_FAILED").With("identity_id", id.ID).Wrap(err)
	}
	token, err := s.issue(updated)
	if err != nil {
		return nil, "", err
	}
	return updated, token, nil
}

// selfEditable lists the fields an identity may change on itself.
var selfEditable = []string{FieldName, FieldEmail, FieldPhoto}

// UpdateMe applies the name, email and photo fields of patch to id. Other
// fields are ignored; password fields are rejected.
func (s *Service) UpdateMe(ctx context.Context, id *Identity, patch map[string]any) (*Identity, error) {
	for _, k := range []string{FieldPassword, "passwordConfirm", "passwordCurrent"} {
		if _, ok := patch[k]; ok {
			return nil, oops.Code("AUTH_UPDATE_ME_PASSWORD").
				Wrap(errutil.New(errutil.KindValidation, msgNotForPasswords))
		}
	}
	filtered := docstore.Document{}
	for _, k := range selfEditable {
		if v, ok := patch[k]; ok {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return id, nil
	}
	if err := UserSchema.ValidatePatch(filtered); err != nil {
		return nil, conflictOrFail("AUTH_UPDATE_ME_INVALID", err)
	}
	updated, err := s.store.Update(ctx, id.ID, filtered)
	if err != nil {
		return nil, conflictOrFail("AUTH_UPDATE_ME_FAILED", err)
	}
	return updated, nil
}

// DeleteMe deactivates id. The document is kept and excluded from every
// lookup afterwards.
func (s *Service) DeleteMe(ctx context.Context, id *Identity) error {
	if _, err := s.store.Update(ctx, id.ID, docstore.Document{FieldActive: false}); err != nil {
		return oops.Code("AUTH_DELETE_ME_FAILED").With("identity_id", id.ID).Wrap(err)
	}
	return nil
}
