package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

const defaultTokenTTL = 30 * 24 * time.Hour

// AuthService issues tokens for teachers, students and parents.
type AuthService interface {
	Login(ctx context.Context, payload dto.LoginRequest) (dto.LoginResponse, error)
	CurrentUser(ctx context.Context, userID uint, role string) (interface{}, error)
}

type authService struct {
	teachers  repository.TeacherRepository
	students  repository.StudentRepository
	parents   repository.ParentRepository
	validator *validator.Validate
	secret    []byte
	ttl       time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuthService constructs the authentication service.
func NewAuthService(teachers repository.TeacherRepository, students repository.StudentRepository, parents repository.ParentRepository, validate *validator.Validate, secret string, ttl time.Duration, logger zerolog.Logger) AuthService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &authService{
		teachers:  teachers,
		students:  students,
		parents:   parents,
		validator: validate,
		secret:    []byte(secret),
		ttl:       ttl,
		logger:    logger.With().Str("component", "auth_service").Logger(),
		now:       time.Now,
	}
}

// HashPassword hashes a plain text password with bcrypt.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (s *authService) Login(ctx context.Context, payload dto.LoginRequest) (dto.LoginResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.LoginResponse{}, err
	}
	email := strings.ToLower(strings.TrimSpace(payload.Email))

	var (
		userID    uint
		hash      string
		active    bool
		user      interface{}
		lookupErr error
	)
	switch payload.Role {
	case models.RoleTeacher:
		teacher, err := s.teachers.GetByEmail(ctx, email)
		lookupErr = err
		userID, hash, active, user = teacher.ID, teacher.PasswordHash, teacher.IsActive, dto.NewTeacherResponse(teacher)
	case models.RoleStudent:
		student, err := s.students.GetByEmail(ctx, email)
		lookupErr = err
		userID, hash, active, user = student.ID, student.PasswordHash, student.IsActive, dto.NewStudentResponse(student)
	case models.RoleParent:
		parent, err := s.parents.GetByEmail(ctx, email)
		lookupErr = err
		userID, hash, active, user = parent.ID, parent.PasswordHash, parent.IsActive, dto.NewParentResponse(parent)
	default:
		return dto.LoginResponse{}, ErrInvalidCredentials
	}

	if lookupErr != nil {
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			s.logger.Info().Str("email", maskEmailAddress(email)).Str("role", payload.Role).Msg("login rejected: unknown account")
			return dto.LoginResponse{}, ErrInvalidCredentials
		}
		return dto.LoginResponse{}, lookupErr
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(payload.Password)); err != nil {
		s.logger.Info().Str("email", maskEmailAddress(email)).Str("role", payload.Role).Msg("login rejected: bad password")
		return dto.LoginResponse{}, ErrInvalidCredentials
	}
	if !active {
		return dto.LoginResponse{}, ErrAccountInactive
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(userID), 10),
		"role": payload.Role,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return dto.LoginResponse{}, err
	}

	s.logger.Info().Uint("user_id", userID).Str("role", payload.Role).Msg("login succeeded")

	return dto.LoginResponse{
		Token:     signed,
		ExpiresAt: expiresAt,
		Role:      payload.Role,
		User:      user,
	}, nil
}

func (s *authService) CurrentUser(ctx context.Context, userID uint, role string) (interface{}, error) {
	switch role {
	case models.RoleTeacher, models.RoleAdmin:
		teacher, err := s.teachers.GetByID(ctx, userID)
		if err != nil {
			return nil, notFoundAs(err, ErrTeacherNotFound)
		}
		return dto.NewTeacherResponse(teacher), nil
	case models.RoleStudent:
		student, err := s.students.GetByID(ctx, userID)
		if err != nil {
			return nil, notFoundAs(err, ErrStudentNotFound)
		}
		return dto.NewStudentResponse(student), nil
	case models.RoleParent:
		parent, err := s.parents.GetByID(ctx, userID)
		if err != nil {
			return nil, notFoundAs(err, ErrParentNotFound)
		}
		return dto.NewParentResponse(parent), nil
	default:
		return nil, ErrInvalidCredentials
	}
}

// maskEmailAddress keeps the first and last character of the local part for log lines.
func maskEmailAddress(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	if len(local) <= 2 {
		return local[:1] + "***@" + domain
	}
	return local[:1] + "***" + local[len(local)-1:] + "@" + domain
}
