package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

const testSecret = "test-signing-secret"

func newAuthFixture(t *testing.T) (AuthService, schoolFixture) {
	t.Helper()
	db := newTestDB(t)
	f := seedSchool(t, db)
	svc := NewAuthService(
		repository.NewTeacherRepository(db),
		repository.NewStudentRepository(db),
		repository.NewParentRepository(db),
		testValidator(),
		testSecret,
		time.Hour,
		testLogger(),
	)
	impl := svc.(*authService)
	impl.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return svc, f
}

func TestLoginIssuesRoleScopedToken(t *testing.T) {
	svc, f := newAuthFixture(t)

	cases := []struct {
		role   string
		email  string
		userID uint
	}{
		{models.RoleTeacher, "Meera@School.test", f.Teacher.ID},
		{models.RoleStudent, "arjun@school.test", f.Student.ID},
		{models.RoleParent, "vikram@home.test", f.Parent.ID},
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			resp, err := svc.Login(context.Background(), dto.LoginRequest{Email: tc.email, Password: fixturePassword, Role: tc.role})
			require.NoError(t, err)
			require.Equal(t, tc.role, resp.Role)
			require.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), resp.ExpiresAt)

			claims := jwt.MapClaims{}
			_, err = jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(testSecret), nil
			}, jwt.WithoutClaimsValidation())
			require.NoError(t, err)
			require.Equal(t, tc.role, claims["role"])
			sub, err := claims.GetSubject()
			require.NoError(t, err)
			require.Equal(t, strconv.FormatUint(uint64(tc.userID), 10), sub)
		})
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "meera@school.test", Password: "wrong-pass", Role: models.RoleTeacher})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "nobody@school.test", Password: fixturePassword, Role: models.RoleTeacher})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// a student account cannot sign in through the teacher role
	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "arjun@school.test", Password: fixturePassword, Role: models.RoleTeacher})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), dto.LoginRequest{Email: "arjun@school.test", Password: fixturePassword, Role: "admin"})
	require.Error(t, err)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	db := newTestDB(t)
	f := seedSchool(t, db)
	require.NoError(t, db.Model(&models.Student{}).Where("id = ?", f.Student.ID).Update("is_active", false).Error)

	svc := NewAuthService(repository.NewTeacherRepository(db), repository.NewStudentRepository(db), repository.NewParentRepository(db), testValidator(), testSecret, 0, testLogger())
	_, err := svc.Login(context.Background(), dto.LoginRequest{Email: "arjun@school.test", Password: fixturePassword, Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrAccountInactive)
}

func TestCurrentUser(t *testing.T) {
	svc, f := newAuthFixture(t)

	user, err := svc.CurrentUser(context.Background(), f.Student.ID, models.RoleStudent)
	require.NoError(t, err)
	require.IsType(t, dto.StudentResponse{}, user)

	_, err = svc.CurrentUser(context.Background(), 999, models.RoleParent)
	require.ErrorIs(t, err, ErrParentNotFound)
}

func TestMaskEmailAddress(t *testing.T) {
	require.Equal(t, "m***a@school.test", maskEmailAddress("Meera@school.test"))
	require.Equal(t, "a***@x.io", maskEmailAddress("ab@x.io"))
	require.Equal(t, "***", maskEmailAddress("not-an-email"))
	require.Empty(t, maskEmailAddress(" "))
}

