package service_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bookden/library-service/library/internal/errs"
	"github.com/bookden/library-service/library/internal/model"
	"github.com/bookden/library-service/pkg/auth"
)

func TestService_Register(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("hashes password and defaults role", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		req := model.RegisterRequest{Name: "Paul", Email: "paul@arrakis.io", Password: "Spice4Ever!"}

		repo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, u model.User) (model.User, error) {
				require.NotEmpty(t, u.ID)
				require.Equal(t, model.RoleReader, u.Role)
				require.NotEqual(t, req.Password, u.PasswordHash)
				require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)))
				return u, nil
			})

		resp, err := svc.Register(ctx, req)
		require.NoError(t, err)
		require.NotEmpty(t, resp.AccessToken)
		require.Equal(t, model.RoleReader, resp.User.Role)
		require.Equal(t, int(auth.TokenTTL.Seconds()), resp.ExpiresIn)
	})

	t.Run("keeps requested role", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)
		req := model.RegisterRequest{Name: "Frank", Email: "frank@arrakis.io", Password: "Spice4Ever!", Role: model.RoleAuthor}

		repo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, u model.User) (model.User, error) {
				require.Equal(t, model.RoleAuthor, u.Role)
				return u, nil
			})

		resp, err := svc.Register(ctx, req)
		require.NoError(t, err)
		require.Equal(t, model.RoleAuthor, resp.User.Role)
	})

	t.Run("email taken", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Return(model.User{}, errs.ErrEmailTaken)

		_, err := svc.Register(ctx, model.RegisterRequest{Name: "Paul", Email: "paul@arrakis.io", Password: "Spice4Ever!"})
		require.ErrorIs(t, err, errs.ErrEmailTaken)
	})
}

func TestService_Login(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("Spice4Ever!"), bcrypt.MinCost)
	require.NoError(t, err)
	stored := model.User{ID: userID, Email: "paul@arrakis.io", PasswordHash: string(hash), Role: model.RoleReader}

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetUserByEmail(gomock.Any(), stored.Email).Return(stored, nil)

		resp, err := svc.Login(ctx, model.LoginRequest{Email: stored.Email, Password: "Spice4Ever!"})
		require.NoError(t, err)
		require.NotEmpty(t, resp.AccessToken)
		require.Equal(t, userID, resp.User.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetUserByEmail(gomock.Any(), stored.Email).Return(stored, nil)

		_, err := svc.Login(ctx, model.LoginRequest{Email: stored.Email, Password: "Melange4Ever!"})
		require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	})

	t.Run("unknown email is indistinguishable from wrong password", func(t *testing.T) {
		t.Parallel()
		svc, repo := newSvc(t)

		repo.EXPECT().GetUserByEmail(gomock.Any(), "ghost@arrakis.io").Return(model.User{}, errs.ErrNotFound)

		_, err := svc.Login(ctx, model.LoginRequest{Email: "ghost@arrakis.io", Password: "whatever"})
		require.ErrorIs(t, err, errs.ErrInvalidCredentials)
	})
}
