package webapi

import (
	"net/http"
	"sync"

	"github.com/apex/log"
	"github.com/kit-data-manager/staging/pkg/clog"
	"github.com/labstack/echo/v4"
)

// LogController lets operators change the daemon's logging level and output
// at runtime without a restart. The actual state lives in pkg/clog; the
// controller only sequences combined changes.
type LogController struct {
	mu sync.Mutex
}

type loggingState struct {
	LogLevel  string `json:"log_level"`
	LogOutput string `json:"log_output"`
}

func NewLogController() *LogController {
	clog.Setup()
	return &LogController{}
}

func currentLogging() loggingState {
	return loggingState{
		LogLevel:  clog.Level().String(),
		LogOutput: clog.Output(),
	}
}

func (c *LogController) SetLoggingHandler(ctx echo.Context) error {
	var req struct {
		LogLevel  string `json:"log_level"`
		LogOutput string `json:"log_output"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	oldLevel := clog.Level()
	if err := clog.SetLevelFromString(req.LogLevel); err != nil {
		return err
	}

	if err := clog.SetOutputPath(req.LogOutput); err != nil {
		// Couldn't apply both; put the level back where it was.
		clog.SetLevel(oldLevel)
		return err
	}

	return ctx.JSON(http.StatusOK, currentLogging())
}

func (c *LogController) SetLogLevelHandler(ctx echo.Context) error {
	var req struct {
		LogLevel string `json:"log_level"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := clog.SetLevelFromString(req.LogLevel); err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, currentLogging())
}

func (c *LogController) SetLogOutputHandler(ctx echo.Context) error {
	var req struct {
		LogOutput string `json:"log_output"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := clog.SetOutputPath(req.LogOutput); err != nil {
		return err
	}

	log.Infof("Switched log output to %s", req.LogOutput)
	return ctx.JSON(http.StatusOK, currentLogging())
}

func (c *LogController) ShowCurrentLoggingHandler(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, currentLogging())
}
