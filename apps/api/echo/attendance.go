package echoapi

import (
	"net/http"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core/attendance"
)

type attendanceApi struct {
	svc        *attendance.Service
	validate   *validator.Validate
	translator ut.Translator
}

func registerAttendanceAPI(
	g *echo.Group,
	svc *attendance.Service,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := attendanceApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	g.GET("/health", api.health)
	g.POST("/attendance", api.store)
	g.PUT("/participants/:id", api.updateParticipant)

	sg := g.Group("/sessions")
	sg.GET("", api.querySessions)
	sg.GET("/:id", api.retrieveSession)
	sg.GET("/:id/stats", api.sessionStats)
}

// Handlers

func (api *attendanceApi) health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

func (api *attendanceApi) store(ctx echo.Context) error {
	var data attendance.Submission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Submission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	recs, err := api.svc.Store(data)
	if err != nil {
		return errors.Wrap(err, "storing session")
	}

	return ctx.JSON(http.StatusCreated, recs)
}

func (api *attendanceApi) updateParticipant(ctx echo.Context) error {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return errHttpNotFound
	}

	var data attendance.UpdateRecord
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecord")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.UpdateParticipant(id, data)
	if err != nil {
		if errors.Cause(err) == attendance.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "updating participant")
	}

	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) querySessions(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)

	sums, err := api.svc.Sessions(ord.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}

	return ctx.JSON(http.StatusOK, sums)
}

func (api *attendanceApi) retrieveSession(ctx echo.Context) error {
	recs, err := api.svc.SessionRecords(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == attendance.ErrSessionNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting session records")
	}

	return ctx.JSON(http.StatusOK, recs)
}

func (api *attendanceApi) sessionStats(ctx echo.Context) error {
	stats, err := api.svc.SessionStats(ctx.Param("id"))
	if err != nil {
		if errors.Cause(err) == attendance.ErrSessionNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting session stats")
	}

	return ctx.JSON(http.StatusOK, stats)
}
