package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/aussiebroadwan/keyhouse/internal/auth/domain"
	"github.com/aussiebroadwan/keyhouse/internal/auth/store"
	"github.com/aussiebroadwan/keyhouse/pkg/idx"
	"github.com/aussiebroadwan/keyhouse/pkg/slogx"
)

var noWhitespace = regexp.MustCompile(`^\S+$`)

// RegistrationCandidate is a user asking to sign up.
type RegistrationCandidate struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// Validate checks the login and password rules. The returned error is a
// validation.Errors keyed by json field name.
func (c RegistrationCandidate) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(
			&c.Login,
			validation.Required,
			validation.RuneLength(4, 63),
			validation.Match(noWhitespace).Error("must not contain whitespace"),
		),
		validation.Field(
			&c.Password,
			validation.Required,
			validation.RuneLength(7, 99),
			validation.By(passwordComplexity),
		),
		validation.Field(&c.Name, validation.Length(0, 200)),
		validation.Field(&c.Email, is.Email),
	)
}

// passwordComplexity requires at least one digit, one lowercase and one
// uppercase letter. It is not an entropy estimate.
func passwordComplexity(value any) error {
	s, _ := value.(string)
	var digit, lower, upper bool
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		}
	}
	if !digit || !lower || !upper {
		return errors.New("must contain a digit, a lowercase and an uppercase letter")
	}
	return nil
}

// Register validates the candidate, hashes the password and creates the
// user with the default privilege.
func (e *Engine) Register(ctx context.Context, c RegistrationCandidate) (domain.User, error) {
	if err := c.Validate(); err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}

	_, exists, err := e.store.Users().FindUser(ctx, store.ByLogin(c.Login))
	if err != nil {
		return domain.User{}, err
	}
	if exists {
		return domain.User{}, ErrLoginConflict
	}

	hash, err := e.hasher.Hash(ctx, c.Password)
	if err != nil {
		return domain.User{}, err
	}

	user, err := e.store.Users().CreateUser(ctx, domain.User{
		ID:           idx.NewAt(e.now()).String(),
		Login:        c.Login,
		Name:         c.Name,
		Email:        c.Email,
		PasswordHash: hash,
		Privilege:    domain.PrivilegeUser,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return domain.User{}, ErrLoginConflict
	}
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("login", user.Login),
	)
	return user, nil
}

// SetPrivilege changes the privilege label of an existing login. Tokens
// already issued keep the old label until they are refreshed.
func (e *Engine) SetPrivilege(ctx context.Context, login, privilege string) (domain.User, error) {
	if privilege != domain.PrivilegeUser && privilege != domain.PrivilegeAdmin {
		return domain.User{}, fmt.Errorf("%w: unknown privilege %q", ErrInvalidRequest, privilege)
	}

	user, err := e.store.Users().SetPrivilege(ctx, login, privilege)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("privilege changed",
		slog.String("user_id", user.ID),
		slog.String("privilege", privilege),
	)
	return user, nil
}
