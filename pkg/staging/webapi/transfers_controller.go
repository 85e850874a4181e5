package webapi

import (
	"net/http"
	"strconv"

	"github.com/kit-data-manager/staging/pkg/auth"
	"github.com/kit-data-manager/staging/pkg/dataorg"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/kit-data-manager/staging/pkg/stagedb/stor"
	"github.com/kit-data-manager/staging/pkg/staging"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// Headers the caller identifies itself with. The daemon sits behind the
// repository gateway which authenticates the user and forwards these.
const (
	UserIDHeader  = "X-Staging-User"
	GroupIDHeader = "X-Staging-Group"
	RoleHeader    = "X-Staging-Role"
)

type TransfersController struct {
	service *staging.Service
}

func NewTransfersController(service *staging.Service) *TransfersController {
	return &TransfersController{service: service}
}

type countResponse struct {
	Count int64 `json:"count"`
}

func (c *TransfersController) ScheduleDownloadHandler(ctx echo.Context) error {
	return c.schedule(ctx, model.KindDownload)
}

func (c *TransfersController) PrepareIngestHandler(ctx echo.Context) error {
	return c.schedule(ctx, model.KindIngest)
}

func (c *TransfersController) schedule(ctx echo.Context, kind model.Kind) error {
	var req struct {
		ObjectID   string            `json:"object_id"`
		Properties map[string]string `json:"properties,omitempty"`
	}

	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	properties := staging.FromMap(req.Properties)
	accessCtx := accessContext(ctx)

	var (
		transfer *model.Transfer
		err      error
	)
	switch kind {
	case model.KindIngest:
		transfer, err = c.service.PrepareIngest(req.ObjectID, nil, properties, accessCtx)
	default:
		transfer, err = c.service.ScheduleDownload(req.ObjectID, nil, properties, accessCtx)
	}

	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(http.StatusCreated, transfer)
}

func (c *TransfersController) GetTransferHandler(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	transfer, err := c.service.GetTransferByID(id, accessContext(ctx))
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(http.StatusOK, transfer)
}

// IndexTransfersHandler lists transfers. Filters (all optional, combined
// filters are not supported): object_id with kind, owner, status with kind,
// expired with kind. offset/limit paginate, -1 or absence means unbounded.
func (c *TransfersController) IndexTransfersHandler(ctx echo.Context) error {
	accessCtx := accessContext(ctx)
	offset := queryInt(ctx, "offset", -1)
	limit := queryInt(ctx, "limit", -1)
	kind := model.Kind(ctx.QueryParam("kind"))

	var (
		transfers []model.Transfer
		err       error
	)
	switch {
	case ctx.QueryParam("object_id") != "":
		transfers, err = c.service.ListTransfersByObjectID(kind, ctx.QueryParam("object_id"), offset, limit, accessCtx)
	case ctx.QueryParam("owner") != "":
		transfers, err = c.service.ListTransfersByOwner(ctx.QueryParam("owner"), offset, limit, accessCtx)
	case ctx.QueryParam("status") != "":
		transfers, err = c.service.ListTransfersByStatus(kind, queryInt(ctx, "status", 0), offset, limit, accessCtx)
	case ctx.QueryParam("expired") == "true":
		transfers, err = c.service.ListExpiredTransfers(kind, offset, limit, accessCtx)
	default:
		transfers, err = c.service.ListTransfers(offset, limit, accessCtx)
	}

	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(http.StatusOK, transfers)
}

func (c *TransfersController) CountTransfersHandler(ctx echo.Context) error {
	accessCtx := accessContext(ctx)
	kind := model.Kind(ctx.QueryParam("kind"))

	var (
		count int64
		err   error
	)
	switch {
	case ctx.QueryParam("object_id") != "":
		count, err = c.service.CountTransfersByObjectID(kind, ctx.QueryParam("object_id"), accessCtx)
	case ctx.QueryParam("owner") != "":
		count, err = c.service.CountTransfersByOwner(ctx.QueryParam("owner"), accessCtx)
	case ctx.QueryParam("status") != "":
		count, err = c.service.CountTransfersByStatus(kind, queryInt(ctx, "status", 0), accessCtx)
	case ctx.QueryParam("expired") == "true":
		count, err = c.service.CountExpiredTransfers(kind, accessCtx)
	default:
		count, err = c.service.CountTransfers(accessCtx)
	}

	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(http.StatusOK, countResponse{Count: count})
}

func (c *TransfersController) UpdateStatusHandler(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var req struct {
		Status       int    `json:"status"`
		ErrorMessage string `json:"error_message,omitempty"`
	}

	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	affected, err := c.service.UpdateStatus(id, model.IDToStatus(req.Status), req.ErrorMessage, accessContext(ctx))
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(http.StatusOK, countResponse{Count: affected})
}

func (c *TransfersController) UpdateURLHandler(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var req struct {
		ClientAccessURL string `json:"client_access_url,omitempty"`
		StagingURL      string `json:"staging_url,omitempty"`
		StorageURL      string `json:"storage_url,omitempty"`
	}

	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	accessCtx := accessContext(ctx)
	var affected int64
	for _, update := range []struct {
		value string
		fn    func(int64, string, auth.AccessContext) (int64, error)
	}{
		{req.ClientAccessURL, c.service.UpdateClientAccessURL},
		{req.StagingURL, c.service.UpdateStagingURL},
		{req.StorageURL, c.service.UpdateStorageURL},
	} {
		if update.value == "" {
			continue
		}

		n, err := update.fn(id, update.value, accessCtx)
		if err != nil {
			return toHTTPError(err)
		}
		affected = n
	}

	return ctx.JSON(http.StatusOK, countResponse{Count: affected})
}

func (c *TransfersController) RemoveTransferHandler(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	affected, err := c.service.RemoveTransfer(id, accessContext(ctx))
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(http.StatusOK, countResponse{Count: affected})
}

func (c *TransfersController) CleanupHandler(ctx echo.Context) error {
	cleaned, err := c.service.Cleanup(accessContext(ctx))
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(http.StatusOK, countResponse{Count: cleaned})
}

func (c *TransfersController) RegisterTreeHandler(ctx echo.Context) error {
	tree, err := dataorg.DecodeTree(ctx.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := c.service.RegisterFileTree(tree, accessContext(ctx)); err != nil {
		return toHTTPError(err)
	}

	return ctx.NoContent(http.StatusCreated)
}

func (c *TransfersController) GetTreeHandler(ctx echo.Context) error {
	tree, err := c.service.LoadFileTree(ctx.Param("object"), accessContext(ctx))
	if err != nil {
		return toHTTPError(err)
	}

	ctx.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx.Response().WriteHeader(http.StatusOK)
	return dataorg.EncodeTree(ctx.Response(), tree)
}

func (c *TransfersController) GetTreeAggregatesHandler(ctx echo.Context) error {
	accessCtx := accessContext(ctx)
	objectID := ctx.Param("object")

	return ctx.JSON(http.StatusOK, echo.Map{
		"object_id":  objectID,
		"data_size":  c.service.GetAssociatedDataSize(objectID, accessCtx),
		"file_count": c.service.GetAssociatedFileCount(objectID, accessCtx),
	})
}

func accessContext(ctx echo.Context) auth.AccessContext {
	role := auth.RoleMember
	if r, err := auth.ParseRole(ctx.Request().Header.Get(RoleHeader)); err == nil {
		role = r
	}

	return auth.NewAccessContext(
		ctx.Request().Header.Get(UserIDHeader),
		ctx.Request().Header.Get(GroupIDHeader),
		role,
	)
}

func pathID(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "transfer id must be numeric")
	}

	return id, nil
}

func queryInt(ctx echo.Context, name string, defaultValue int) int {
	value, err := strconv.Atoi(ctx.QueryParam(name))
	if err != nil {
		return defaultValue
	}

	return value
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, staging.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, staging.ErrObjectNotFound), errors.Is(err, stor.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, stor.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, stor.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
