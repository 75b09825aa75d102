package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmsme/invoicehub/common"
	"github.com/openmsme/invoicehub/db/models"
	"github.com/openmsme/invoicehub/lib/security"
	"github.com/openmsme/invoicehub/lib/tokens"
	passwordvalidator "github.com/wagslane/go-password-validator"
)

type RegisterUserParams struct {
	Email         string
	Login         string
	Password      string
	Role          string
	WalletAddress string
}

// RegisterUser creates the profile backing an acting identity. The role is
// validated against the closed set here and never changed by any other call.
func (svc *InvoicehubService) RegisterUser(ctx context.Context, params RegisterUserParams) (user *models.User, err error) {
	role := strings.ToLower(params.Role)
	if !common.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, params.Role)
	}
	if params.Email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	if svc.Config.MinPasswordEntropy > 0 {
		entropy := passwordvalidator.GetEntropy(params.Password)
		if entropy < float64(svc.Config.MinPasswordEntropy) {
			return nil, fmt.Errorf("%w: password entropy is too low (%f), required is %d", ErrValidation, entropy, svc.Config.MinPasswordEntropy)
		}
	}

	user = &models.User{
		Email:         params.Email,
		Login:         params.Login,
		Role:          role,
		WalletAddress: params.WalletAddress,
	}
	if user.Login == "" {
		user.Login = params.Email
	}

	// we only store the hashed password
	user.Password = security.HashPassword(params.Password)

	_, err = svc.DB.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (svc *InvoicehubService) FindUser(ctx context.Context, userId int64) (*models.User, error) {
	var user models.User

	err := svc.DB.NewSelect().Model(&user).Where("id = ?", userId).Limit(1).Scan(ctx)
	if err != nil {
		return &user, err
	}
	return &user, nil
}

func (svc *InvoicehubService) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var user models.User

	err := svc.DB.NewSelect().Model(&user).Where("login = ?", login).Limit(1).Scan(ctx)
	if err != nil {
		return &user, err
	}
	return &user, nil
}

func (svc *InvoicehubService) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User

	err := svc.DB.NewSelect().Model(&user).Where("email = ?", email).Limit(1).Scan(ctx)
	if err != nil {
		return &user, err
	}
	return &user, nil
}

func (svc *InvoicehubService) FindUserByWalletAddress(ctx context.Context, walletAddress string) (*models.User, error) {
	var user models.User

	err := svc.DB.NewSelect().Model(&user).Where("wallet_address = ?", walletAddress).Limit(1).Scan(ctx)
	if err != nil {
		return &user, err
	}
	return &user, nil
}

func (svc *InvoicehubService) GenerateToken(ctx context.Context, login, password, inRefreshToken string) (accessToken, refreshToken string, err error) {
	var user *models.User

	switch {
	case login != "" || password != "":
		{
			user, err = svc.FindUserByLogin(ctx, login)
			if err != nil {
				return "", "", fmt.Errorf("bad auth")
			}
			if !security.VerifyPassword(user.Password, password) {
				return "", "", fmt.Errorf("bad auth")
			}
		}
	case inRefreshToken != "":
		{
			userId, err := tokens.GetUserIdFromToken(svc.Config.JWTSecret, inRefreshToken)
			if err != nil {
				return "", "", fmt.Errorf("bad auth")
			}
			user, err = svc.FindUser(ctx, userId)
			if err != nil {
				return "", "", fmt.Errorf("bad auth")
			}
		}
	default:
		{
			return "", "", fmt.Errorf("login and password or refresh token is required")
		}
	}

	if user.Deactivated {
		return "", "", fmt.Errorf("account deactivated")
	}

	accessToken, err = tokens.GenerateAccessToken(svc.Config.JWTSecret, svc.Config.JWTAccessTokenExpiry, user)
	if err != nil {
		return "", "", err
	}

	refreshToken, err = tokens.GenerateRefreshToken(svc.Config.JWTSecret, svc.Config.JWTRefreshTokenExpiry, user)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}
