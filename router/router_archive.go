package router

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/onyxcmd/onyxd/archive"
	"github.com/onyxcmd/onyxd/router/middleware"
)

// archiveActor identifies who requested a destructive action, recorded on
// the resulting archive record.
func archiveActor(c *gin.Context) string {
	if actor := c.GetHeader("X-Actor"); actor != "" {
		return actor
	}
	return "api"
}

func archiveItemID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid item id"})
		return 0, false
	}
	return uint(id), true
}

// getArchiveList returns one page of archive records.
func getArchiveList(c *gin.Context) {
	f := archive.ListFilter{
		ItemType: c.Query("item_type"),
		Status:   c.Query("status"),
	}
	if v := c.Query("page"); v != "" {
		f.Page, _ = strconv.Atoi(v)
	}
	if v := c.Query("per_page"); v != "" {
		f.PerPage, _ = strconv.Atoi(v)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}

	records, total, err := middleware.ExtractArchive(c).List(f)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, ArchiveListResponse{
		Data:    records,
		Total:   total,
		Page:    f.Page,
		PerPage: f.PerPage,
	})
}

func getArchiveStats(c *gin.Context) {
	stats, err := middleware.ExtractArchive(c).Stats()
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func postArchiveSweep(c *gin.Context) {
	res, err := middleware.ExtractArchive(c).Sweep()
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func postArchiveRestore(c *gin.Context) {
	id, ok := archiveItemID(c)
	if !ok {
		return
	}
	record, err := middleware.ExtractArchive(c).RestoreItem(id)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func deleteArchiveItem(c *gin.Context) {
	id, ok := archiveItemID(c)
	if !ok {
		return
	}
	if err := middleware.ExtractArchive(c).PermanentDelete(id); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func deleteArchiveAll(c *gin.Context) {
	removed, err := middleware.ExtractArchive(c).EmptyArchive()
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// postArchiveBackup bundles archived snapshots into a ZIP on disk.
func postArchiveBackup(c *gin.Context) {
	var recordID uint
	if v := c.Query("record_id"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 32); err == nil {
			recordID = uint(id)
		}
	}
	path, err := middleware.ExtractArchive(c).CreateBackup(c.Request.Context(), recordID)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, BackupResponse{Path: path})
}

// postArchiveCloudExport creates a backup bundle and uploads it to the
// named provider.
func postArchiveCloudExport(c *gin.Context) {
	var req CloudExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload"})
		return
	}

	arc := middleware.ExtractArchive(c)
	path, err := arc.CreateBackup(c.Request.Context(), req.RecordID)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	res, err := arc.ExportToCloud(c.Request.Context(), req.Provider, path)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// getArchivePluginPreview shows the heuristically matched tables and
// options a complete deletion would remove, so the operator can review
// them before committing.
func getArchivePluginPreview(c *gin.Context) {
	pluginFile := c.Query("plugin_file")
	if pluginFile == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "plugin_file is required"})
		return
	}
	preview, err := middleware.ExtractArchive(c).PreviewCompleteDelete(pluginFile)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func postArchivePlugin(c *gin.Context) {
	var req ArchivePluginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload"})
		return
	}
	record, err := middleware.ExtractArchive(c).ArchivePlugin(req.PluginFile, req.CompleteDelete, archiveActor(c))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func postArchiveTheme(c *gin.Context) {
	record, err := middleware.ExtractArchive(c).ArchiveTheme(c.Param("slug"), archiveActor(c))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func postArchivePost(c *gin.Context) {
	id, ok := archiveItemID(c)
	if !ok {
		return
	}
	record, err := middleware.ExtractArchive(c).ArchivePost(id, archiveActor(c))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func postArchiveMedia(c *gin.Context) {
	id, ok := archiveItemID(c)
	if !ok {
		return
	}
	record, err := middleware.ExtractArchive(c).ArchiveMedia(id, archiveActor(c))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func postArchiveComment(c *gin.Context) {
	id, ok := archiveItemID(c)
	if !ok {
		return
	}
	record, err := middleware.ExtractArchive(c).ArchiveComment(id, archiveActor(c))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func postArchiveUser(c *gin.Context) {
	id, ok := archiveItemID(c)
	if !ok {
		return
	}
	record, err := middleware.ExtractArchive(c).ArchiveUser(id, archiveActor(c))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}
