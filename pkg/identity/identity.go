package identity

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/auth"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
)

// Principal is the authenticated caller as carried by a bearer token
type Principal struct {
	Role  database.Role
	Email string
}

// Account is a Principal resolved to its stored record
type Account struct {
	ID       uint
	Principal
	Name     string
	Username string
}

// IsCoordinator reports whether the account may manage events and review proofs
func (a *Account) IsCoordinator() bool {
	return a.Role == database.RoleCoordinator
}

// SignUp is the input for creating a new account of either kind
type SignUp struct {
	Name     string `validate:"required,max=120"`
	Username string `validate:"required,min=3,max=50"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
	Role     string `validate:"required,oneof=VOLUNTEER COORDINATOR"`
}

// Directory is the identity store over volunteers and coordinators.
// Emails and usernames are unique across both tables.
type Directory struct {
	db       *gorm.DB
	logger   *zap.Logger
	validate *validator.Validate
}

// NewDirectory creates a Directory
func NewDirectory(db *gorm.DB, logger *zap.Logger) *Directory {
	return &Directory{db: db, logger: logger, validate: validator.New()}
}

// SignUp creates a volunteer or coordinator and returns the resolved account
func (d *Directory) SignUp(ctx context.Context, req SignUp) (*Account, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	req.Name = strings.TrimSpace(req.Name)

	if err := d.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(err, apperr.InvalidArgument, "invalid sign-up request")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to hash password")
	}

	var account *Account
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := reserveIdentifiers(tx, req.Email, req.Username); err != nil {
			return err
		}
		taken, err := identifierTaken(tx, req.Email, req.Username)
		if err != nil {
			return err
		}
		if taken {
			return apperr.New(apperr.Conflict, "email or username already registered")
		}

		switch database.Role(req.Role) {
		case database.RoleCoordinator:
			c := database.Coordinator{Name: req.Name, Username: req.Username, Email: req.Email, PasswordHash: hash}
			if err := tx.Create(&c).Error; err != nil {
				return err
			}
			account = coordinatorAccount(&c)
		default:
			v := database.Volunteer{Name: req.Name, Username: req.Username, Email: req.Email, PasswordHash: hash}
			if err := tx.Create(&v).Error; err != nil {
				return err
			}
			account = volunteerAccount(&v)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.New(apperr.Conflict, "email or username already registered")
		}
		if apperr.KindOf(err) != apperr.Internal {
			return nil, err
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to create account")
	}

	d.logger.Info("account created",
		zap.Uint("id", account.ID),
		zap.String("role", string(account.Role)),
		zap.String("username", account.Username),
	)
	return account, nil
}

// Authenticate checks credentials given a username or an email.
// Volunteers are matched before coordinators.
func (d *Directory) Authenticate(ctx context.Context, identifier, password string) (*Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, apperr.New(apperr.Unauthorized, "invalid credentials")
	}
	db := d.db.WithContext(ctx)
	email := strings.ToLower(identifier)

	var v database.Volunteer
	err := db.Where("username = ? OR email = ?", identifier, email).First(&v).Error
	if err == nil {
		if !auth.CheckPasswordHash(password, v.PasswordHash) {
			return nil, apperr.New(apperr.Unauthorized, "invalid credentials")
		}
		return volunteerAccount(&v), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to look up volunteer")
	}

	var c database.Coordinator
	err = db.Where("username = ? OR email = ?", identifier, email).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.Unauthorized, "invalid credentials")
		}
		return nil, apperr.Wrap(err, apperr.Internal, "failed to look up coordinator")
	}
	if !auth.CheckPasswordHash(password, c.PasswordHash) {
		return nil, apperr.New(apperr.Unauthorized, "invalid credentials")
	}
	return coordinatorAccount(&c), nil
}

// Resolve maps a token principal onto its stored account
func (d *Directory) Resolve(ctx context.Context, p Principal) (*Account, error) {
	db := d.db.WithContext(ctx)
	email := strings.ToLower(p.Email)

	switch p.Role {
	case database.RoleVolunteer:
		var v database.Volunteer
		if err := db.Where("email = ?", email).First(&v).Error; err != nil {
			return nil, notFoundOr(err, "volunteer not found")
		}
		return volunteerAccount(&v), nil
	case database.RoleCoordinator:
		var c database.Coordinator
		if err := db.Where("email = ?", email).First(&c).Error; err != nil {
			return nil, notFoundOr(err, "coordinator not found")
		}
		return coordinatorAccount(&c), nil
	default:
		return nil, apperr.Newf(apperr.Unauthorized, "unknown role %q", p.Role)
	}
}

// EnsureCoordinator seeds a default coordinator if none exists
func (d *Directory) EnsureCoordinator(ctx context.Context, name, username, email, password string) error {
	var count int64
	if err := d.db.WithContext(ctx).Model(&database.Coordinator{}).Count(&count).Error; err != nil {
		return apperr.Wrap(err, apperr.Internal, "failed to count coordinators")
	}
	if count > 0 {
		return nil
	}

	_, err := d.SignUp(ctx, SignUp{
		Name:     name,
		Username: username,
		Email:    email,
		Password: password,
		Role:     string(database.RoleCoordinator),
	})
	if err != nil {
		return err
	}
	d.logger.Warn("default coordinator created, change its password", zap.String("username", username))
	return nil
}

// Volunteer returns a volunteer by id
func (d *Directory) Volunteer(ctx context.Context, id uint) (*database.Volunteer, error) {
	var v database.Volunteer
	if err := d.db.WithContext(ctx).First(&v, id).Error; err != nil {
		return nil, notFoundOr(err, "volunteer not found")
	}
	return &v, nil
}

// ListVolunteers returns all volunteers, highest points first
func (d *Directory) ListVolunteers(ctx context.Context) ([]database.Volunteer, error) {
	var out []database.Volunteer
	if err := d.db.WithContext(ctx).Order("total_points DESC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "failed to list volunteers")
	}
	return out, nil
}

// reserveIdentifiers serializes sign-ups sharing an email or username until tx ends.
// Volunteers and coordinators live in separate tables, so no unique index spans both.
// SQLite runs on a single connection and needs no lock.
func reserveIdentifiers(tx *gorm.DB, email, username string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	keys := []string{"email:" + email, "username:" + username}
	sort.Strings(keys)
	for _, key := range keys {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
			return err
		}
	}
	return nil
}

func identifierTaken(tx *gorm.DB, email, username string) (bool, error) {
	var n int64
	if err := tx.Model(&database.Volunteer{}).
		Where("email = ? OR username = ?", email, username).Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	if err := tx.Model(&database.Coordinator{}).
		Where("email = ? OR username = ?", email, username).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func volunteerAccount(v *database.Volunteer) *Account {
	return &Account{
		ID:        v.ID,
		Principal: Principal{Role: database.RoleVolunteer, Email: v.Email},
		Name:      v.Name,
		Username:  v.Username,
	}
}

func coordinatorAccount(c *database.Coordinator) *Account {
	return &Account{
		ID:        c.ID,
		Principal: Principal{Role: database.RoleCoordinator, Email: c.Email},
		Name:      c.Name,
		Username:  c.Username,
	}
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.NotFound, msg)
	}
	return apperr.Wrap(err, apperr.Internal, msg)
}
