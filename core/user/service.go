package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/tathmini/backend/core"
)

var (
	// errors
	ErrNotFound             = errors.New("user not found")
	ErrEmailExists          = errors.New("a user with this email already exists")
	ErrInvalidIdentityToken = errors.New("invalid identity token")
)

type (
	// GetFilter fetches a single User by the first non-empty field.
	GetFilter struct {
		ID    string
		Email string
	}

	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		QueryUsers(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	}

	// Identity is the profile asserted by a verified third-party credential.
	Identity struct {
		Email     string
		FirstName string
		LastName  string
	}

	// IdentityVerifier checks a raw third-party token's signature and
	// returns the Identity it asserts. Verification must be cryptographic;
	// a decode-only implementation is not acceptable.
	IdentityVerifier interface {
		Verify(ctx context.Context, rawToken string) (Identity, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

func (svc *Service) checkUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Email:     nu.Email,
		FirstName: nu.FirstName,
		LastName:  nu.LastName,
		QNumber:   nu.QNumber,
		Role:      nu.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeEmail(usr)
	return usr, nil
}

func (svc *Service) Query(ctx context.Context, ordering ...core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// Authenticate checks an email/password pair and returns the matching
// active User. Failure modes are indistinguishable to the caller.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return User{}, ErrNotFound
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrNotFound
	}
	if !usr.IsActive {
		return User{}, ErrNotFound
	}
	return svc.touchLastLogin(ctx, usr)
}

// SyncIdentity resolves a verified third-party Identity to a local User.
// Teachers are auto-provisioned on first sign-in; students must have been
// created beforehand (by an admin or bulk import).
func (svc *Service) SyncIdentity(ctx context.Context, ident Identity) (User, error) {
	email := core.CleanString(ident.Email, true /* lower */)

	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: email})
	if err == nil {
		if !usr.IsActive {
			return User{}, ErrNotFound
		}
		return svc.touchLastLogin(ctx, usr)
	}
	if err != ErrNotFound {
		return User{}, err
	}

	now := time.Now().UTC()
	usr = User{
		Email:     email,
		FirstName: core.CleanString(ident.FirstName),
		LastName:  core.CleanString(ident.LastName),
		Role:      RoleTeacher,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	usr, err = svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeEmail(usr)
	return usr, nil
}

func (svc *Service) touchLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) sendWelcomeEmail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject: "Welcome to " + svc.conf.AppName,
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nYour %s account is ready. Sign in at %s to get started.",
			usr.FirstName, svc.conf.AppName, svc.conf.FrontendBaseURL,
		),
	})
}
