package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tathmini/backend/core"
)

var orderingParam = "ordering"

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	// AzureLoginRequest carries the raw provider-issued ID token; the
	// server verifies its signature before trusting anything in it.
	AzureLoginRequest struct {
		Token string `json:"token" validate:"required"`
	}

	TokenResponse struct {
		Token string      `json:"token"`
		User  interface{} `json:"user"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

func (r *LoginRequest) Validate() error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return core.Validate.Struct(r)
}

func (r *AzureLoginRequest) Validate() error {
	r.Token = core.CleanString(r.Token)
	return core.Validate.Struct(r)
}

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}
