package router

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/eventlog"
	"github.com/onyxcmd/onyxd/router/middleware"
)

// getLogs returns event log entries, optionally filtered by type, module
// and resolution state.
func getLogs(c *gin.Context) {
	f := eventlog.Filter{
		LogType:  c.Query("type"),
		ModuleID: c.Query("module_id"),
	}
	if v := c.Query("resolved"); v != "" {
		resolved := v == "true" || v == "1"
		f.Resolved = &resolved
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}

	entries, err := middleware.ExtractEventLogger(c).Entries(f)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, LogListResponse{Data: entries})
}

// getLogStats aggregates the event log by type, day and module.
func getLogStats(c *gin.Context) {
	days := 30
	if v := c.Query("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	stats, err := middleware.ExtractEventLogger(c).Stats(days)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// getLogExport streams the filtered log as CSV, gzip compressed when
// requested.
func getLogExport(c *gin.Context) {
	events := middleware.ExtractEventLogger(c)
	f := eventlog.Filter{
		LogType:  c.Query("type"),
		ModuleID: c.Query("module_id"),
	}

	name := fmt.Sprintf("onyxd-logs-%s.csv", time.Now().Format("2006-01-02"))
	if c.Query("compress") == "true" {
		c.Header("Content-Type", "application/gzip")
		c.Header("Content-Disposition", `attachment; filename="`+name+`.gz"`)
		if err := events.ExportCompressed(c.Writer, f); err != nil {
			middleware.CaptureAndAbort(c, err)
		}
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := events.Export(c.Writer, f); err != nil {
		middleware.CaptureAndAbort(c, err)
	}
}

func postLogResolve(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid log entry id"})
		return
	}
	if err := middleware.ExtractEventLogger(c).Resolve(uint(id)); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// postLogCleanup trims entries past the configured retention.
func postLogCleanup(c *gin.Context) {
	removed, err := middleware.ExtractEventLogger(c).Cleanup(config.Get().Logs.RetentionDays)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func deleteLogs(c *gin.Context) {
	if err := middleware.ExtractEventLogger(c).Clear(); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
