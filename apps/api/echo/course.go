package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tathmini/backend/core/course"
	"github.com/tathmini/backend/core/user"
)

type courseApi struct {
	svc *course.Service
}

func registerCourseAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *course.Service) {
	api := courseApi{svc: svc}

	cg := g.Group("/courses", jwt, roleMiddleware(user.RoleTeacher, user.RoleAdmin))
	cg.POST("", api.create)
	cg.GET("", api.query)
	cg.POST("/:id/students", api.enroll)
	cg.GET("/:id/groups", api.queryGroups)

	gg := g.Group("/groups", jwt, roleMiddleware(user.RoleTeacher, user.RoleAdmin))
	gg.POST("", api.createGroup)
}

// checkCourseAccess lets course teachers and admins through.
func (api *courseApi) checkCourseAccess(ctx echo.Context, prin user.Principal, courseID string) error {
	if prin.IsAdmin() {
		return nil
	}
	ok, err := api.svc.IsCourseTeacher(ctx.Request().Context(), courseID, prin.ID)
	if err != nil {
		return errors.Wrap(err, "checking course teacher")
	}
	if !ok {
		return errHttpForbidden
	}
	return nil
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data course.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	crs, err := api.svc.Create(ctx.Request().Context(), prin.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) query(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	courses, err := api.svc.QueryForTeacher(ctx.Request().Context(), prin.ID)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) enroll(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	courseID := ctx.Param("id")
	if err = api.checkCourseAccess(ctx, prin, courseID); err != nil {
		return err
	}

	var data course.Enrollment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Enrollment")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	if err = api.svc.Enroll(ctx.Request().Context(), courseID, data); err != nil {
		return errors.Wrap(err, "enrolling students")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "students enrolled"})
}

func (api *courseApi) createGroup(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data course.NewGroup
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err = data.Validate(); err != nil {
		return err
	}
	if err = api.checkCourseAccess(ctx, prin, data.CourseID); err != nil {
		return err
	}

	grp, err := api.svc.CreateGroup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *courseApi) queryGroups(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	courseID := ctx.Param("id")
	if err = api.checkCourseAccess(ctx, prin, courseID); err != nil {
		return err
	}

	groups, err := api.svc.QueryGroups(ctx.Request().Context(), courseID)
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	return ctx.JSON(http.StatusOK, groups)
}
