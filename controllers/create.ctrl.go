package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/openmsme/invoicehub/lib/responses"
	"github.com/openmsme/invoicehub/lib/service"
)

// CreateUserController : Create user controller struct
type CreateUserController struct {
	svc *service.InvoicehubService
}

func NewCreateUserController(svc *service.InvoicehubService) *CreateUserController {
	return &CreateUserController{svc: svc}
}

type CreateUserRequestBody struct {
	Email         string `json:"email" validate:"required,email"`
	Login         string `json:"login"`
	Password      string `json:"password" validate:"required"`
	Role          string `json:"role" validate:"required"`
	WalletAddress string `json:"wallet_address"`
}

type CreateUserResponseBody struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Login string `json:"login"`
	Role  string `json:"role"`
}

// CreateUser : Create user Controller
func (controller *CreateUserController) CreateUser(c echo.Context) error {
	var body CreateUserRequestBody

	if err := c.Bind(&body); err != nil {
		c.Logger().Errorf("Failed to load create user request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&body); err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	if _, err := controller.svc.FindUserByEmail(c.Request().Context(), body.Email); err == nil {
		return c.JSON(http.StatusBadRequest, responses.EmailTakenError)
	}

	user, err := controller.svc.RegisterUser(c.Request().Context(), service.RegisterUserParams{
		Email:         body.Email,
		Login:         body.Login,
		Password:      body.Password,
		Role:          body.Role,
		WalletAddress: body.WalletAddress,
	})
	if err != nil {
		c.Logger().Errorf("Failed to create user: %v", err)
		return errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, &CreateUserResponseBody{
		ID:    user.ID,
		Email: user.Email,
		Login: user.Login,
		Role:  user.Role,
	})
}
