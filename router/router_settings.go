package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onyxcmd/onyxd/archive"
	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/router/middleware"
)

// allowedRetention is the set of retention windows the settings surface
// accepts. Zero keeps archived items indefinitely.
var allowedRetention = map[int]struct{}{0: {}, 7: {}, 14: {}, 30: {}}

func getArchiveSettings(c *gin.Context) {
	cfg := config.Get().Archive
	c.JSON(http.StatusOK, gin.H{
		"retention_days":   cfg.RetentionDays,
		"purge_after_days": cfg.PurgeAfterDays,
		"cloud": gin.H{
			"dropbox":      gin.H{"connected": cfg.Cloud.Dropbox.Connected},
			"google_drive": gin.H{"connected": cfg.Cloud.GoogleDrive.Connected},
		},
	})
}

func putArchiveSettings(c *gin.Context) {
	var req ArchiveSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload"})
		return
	}
	if _, ok := allowedRetention[req.RetentionDays]; !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error: "retention_days must be one of 0, 7, 14 or 30",
		})
		return
	}

	config.Update(func(cfg *config.Configuration) {
		cfg.Archive.RetentionDays = req.RetentionDays
	})
	if err := config.WriteToDisk(config.Get()); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"retention_days": req.RetentionDays})
}

// postConnectDropbox verifies the supplied access token against the
// provider before storing it.
func postConnectDropbox(c *gin.Context) {
	var req DropboxConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload"})
		return
	}

	if err := archive.VerifyDropboxToken(c.Request.Context(), req.Token); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	config.Update(func(cfg *config.Configuration) {
		cfg.Archive.Cloud.Dropbox.Token = req.Token
		cfg.Archive.Cloud.Dropbox.Connected = true
	})
	if err := config.WriteToDisk(config.Get()); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	middleware.ExtractEventLogger(c).Security("cloud_provider_connected", "Dropbox connected", archiveActor(c), c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

func postConnectGoogleDrive(c *gin.Context) {
	var req GoogleDriveConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload"})
		return
	}

	config.Update(func(cfg *config.Configuration) {
		cfg.Archive.Cloud.GoogleDrive.ClientID = req.ClientID
		cfg.Archive.Cloud.GoogleDrive.ClientSecret = req.ClientSecret
		cfg.Archive.Cloud.GoogleDrive.RefreshToken = req.RefreshToken
		cfg.Archive.Cloud.GoogleDrive.Connected = true
	})
	if err := config.WriteToDisk(config.Get()); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	middleware.ExtractEventLogger(c).Security("cloud_provider_connected", "Google Drive connected", archiveActor(c), c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"connected": true})
}

func deleteCloudProvider(c *gin.Context) {
	provider := c.Param("provider")
	switch provider {
	case archive.ProviderDropbox:
		config.Update(func(cfg *config.Configuration) {
			cfg.Archive.Cloud.Dropbox = config.DropboxConfiguration{}
		})
	case archive.ProviderGoogleDrive:
		config.Update(func(cfg *config.Configuration) {
			cfg.Archive.Cloud.GoogleDrive = config.GoogleDriveConfiguration{}
		})
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "unknown cloud provider"})
		return
	}
	if err := config.WriteToDisk(config.Get()); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	middleware.ExtractEventLogger(c).Security("cloud_provider_disconnected", provider+" disconnected", archiveActor(c), c.ClientIP())
	c.Status(http.StatusNoContent)
}
