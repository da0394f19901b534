package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tathmini/backend/core"
	"github.com/tathmini/backend/core/user"
)

type userApi struct {
	svc      *user.Service
	verifier user.IdentityVerifier
	conf     *core.Config
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *user.Service, verifier user.IdentityVerifier, conf *core.Config) {
	api := userApi{svc: svc, verifier: verifier, conf: conf}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login)
	ag.POST("/azure", api.azureLogin)

	ag.GET("/me", api.me, jwt)

	// user administration
	ug := g.Group("/users", jwt, roleMiddleware(user.RoleAdmin))
	ug.POST("", api.create)
	ug.GET("", api.query)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(errors.New("invalid credentials"))
		}
		return errors.Wrap(err, "authenticating")
	}
	return api.tokenResponse(ctx, usr)
}

// azureLogin exchanges a verified provider ID token for an app session.
func (api *userApi) azureLogin(ctx echo.Context) error {
	var data AzureLoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AzureLoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ident, err := api.verifier.Verify(ctx.Request().Context(), data.Token)
	if err != nil {
		return core.NewValidationError(errors.New("invalid identity token"))
	}

	usr, err := api.svc.SyncIdentity(ctx.Request().Context(), ident)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpForbidden
		}
		return errors.Wrap(err, "syncing identity")
	}
	return api.tokenResponse(ctx, usr)
}

func (api *userApi) tokenResponse(ctx echo.Context, usr user.User) error {
	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token, User: usr})
}

func (api *userApi) me(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	usr, err := api.svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(ctx.Request().Context(), api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}
