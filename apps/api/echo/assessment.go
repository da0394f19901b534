package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tathmini/backend/core/assessment"
)

type assessmentApi struct {
	svc *assessment.Service
}

func registerAssessmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *assessment.Service) {
	api := assessmentApi{svc: svc}

	// role gating lives in the service; every caller just needs a session
	ag := g.Group("/assessments", jwt)
	ag.POST("", api.create)
	ag.GET("/pending", api.queryPending)
	ag.GET("/completed", api.queryCompleted)
	ag.GET("/:id", api.retrieve)
	ag.POST("/:id/submit", api.submit)
	ag.GET("/:id/results", api.results)
	ag.GET("/:id/feedback", api.feedback)
}

// Handlers

func (api *assessmentApi) create(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data assessment.NewAssessment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssessment")
	}

	ids, err := api.svc.Create(ctx.Request().Context(), prin, data)
	if err != nil {
		return errors.Wrap(err, "creating assessments")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"ids": ids})
}

func (api *assessmentApi) queryPending(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	items, err := api.svc.ListPending(ctx.Request().Context(), prin)
	if err != nil {
		return errors.Wrap(err, "listing pending assessments")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *assessmentApi) queryCompleted(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	items, err := api.svc.ListCompleted(ctx.Request().Context(), prin)
	if err != nil {
		return errors.Wrap(err, "listing completed assessments")
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *assessmentApi) retrieve(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	detail, err := api.svc.GetDetail(ctx.Request().Context(), prin, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting assessment")
	}
	return ctx.JSON(http.StatusOK, assessment.ProjectDetail(prin, detail))
}

func (api *assessmentApi) submit(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data assessment.ResponseSubmission
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResponseSubmission")
	}

	receipt, err := api.svc.Submit(ctx.Request().Context(), prin, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting response")
	}
	return ctx.JSON(http.StatusOK, receipt)
}

func (api *assessmentApi) results(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	view, err := api.svc.Results(ctx.Request().Context(), prin, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting results")
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *assessmentApi) feedback(ctx echo.Context) error {
	prin, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	view, err := api.svc.Feedback(ctx.Request().Context(), prin, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting feedback")
	}
	return ctx.JSON(http.StatusOK, view)
}
