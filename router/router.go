package router

import (
	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/onyxcmd/onyxd/analyzer"
	"github.com/onyxcmd/onyxd/archive"
	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/eventlog"
	"github.com/onyxcmd/onyxd/host"
	"github.com/onyxcmd/onyxd/loader"
	"github.com/onyxcmd/onyxd/optimizer"
	"github.com/onyxcmd/onyxd/registry"
	"github.com/onyxcmd/onyxd/router/middleware"
)

// Components groups the shared instances constructed at boot. Everything
// is built exactly once and passed in here; handlers extract what they
// need from the request context.
type Components struct {
	Loader    *loader.Loader
	Registry  *registry.Registry
	Checker   *analyzer.Checker
	Archive   *archive.Archive
	EventLog  *eventlog.Logger
	Optimizer *optimizer.Optimizer
	Site      *host.Site
}

// Configure configures the routing infrastructure for this daemon instance.
func Configure(c Components) *gin.Engine {
	gin.SetMode("release")

	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(config.Get().Api.TrustedProxies); err != nil {
		panic(errors.WithStack(err))
	}
	router.Use(middleware.AttachRequestID(), middleware.CaptureErrors(), middleware.SetAccessControlHeaders())
	router.Use(middleware.AttachComponents(c.Loader, c.Registry, c.Checker, c.Archive, c.EventLog, c.Optimizer, c.Site))

	router.Use(gin.LoggerWithFormatter(func(params gin.LogFormatterParams) string {
		log.WithFields(log.Fields{
			"client_ip":  params.ClientIP,
			"status":     params.StatusCode,
			"latency":    params.Latency,
			"request_id": params.Keys["request_id"],
		}).Debugf("%s %s", params.MethodColor()+params.Method+params.ResetColor(), params.Path)

		return ""
	}))

	// All the routes beyond this mount will use an authorization middleware
	// and will not be accessible without the correct Authorization header provided.
	protected := router.Group("")
	protected.Use(middleware.RequireAuthorization())

	protected.GET("/api/system", getSystemInformation)

	protected.GET("/api/config", getConfigRaw)
	protected.PUT("/api/config", putConfigRaw)
	protected.PATCH("/api/config/patch", patchConfig)

	protected.GET("/api/modules", getModules)
	protected.POST("/api/modules", postInstallModule)
	protected.POST("/api/modules/scan-register", postScanRegisterModules)
	module := protected.Group("/api/modules/:module")
	{
		module.GET("", getModule)
		module.DELETE("", deleteModule)
		module.POST("/activate", postModuleActivate)
		module.POST("/deactivate", postModuleDeactivate)
		module.POST("/execute", postModuleExecute)
		module.GET("/scan", getModuleScan)
		module.POST("/autofix", postModuleAutoFix)
		module.GET("/config", getModuleConfig)
		module.PUT("/config", putModuleConfig)
	}

	protected.GET("/api/logs", getLogs)
	protected.GET("/api/logs/stats", getLogStats)
	protected.GET("/api/logs/export", getLogExport)
	protected.POST("/api/logs/:id/resolve", postLogResolve)
	protected.POST("/api/logs/cleanup", postLogCleanup)
	protected.DELETE("/api/logs", deleteLogs)

	protected.GET("/api/archive", getArchiveList)
	protected.GET("/api/archive/stats", getArchiveStats)
	protected.POST("/api/archive/sweep", postArchiveSweep)
	protected.POST("/api/archive/backup", postArchiveBackup)
	protected.POST("/api/archive/cloud-export", postArchiveCloudExport)
	protected.DELETE("/api/archive", deleteArchiveAll)
	protected.POST("/api/archive/:id/restore", postArchiveRestore)
	protected.DELETE("/api/archive/:id", deleteArchiveItem)

	protected.GET("/api/archive/plugins/preview", getArchivePluginPreview)
	protected.POST("/api/archive/plugins", postArchivePlugin)
	protected.POST("/api/archive/themes/:slug", postArchiveTheme)
	protected.POST("/api/archive/posts/:id", postArchivePost)
	protected.POST("/api/archive/media/:id", postArchiveMedia)
	protected.POST("/api/archive/comments/:id", postArchiveComment)
	protected.POST("/api/archive/users/:id", postArchiveUser)

	protected.GET("/api/settings/archive", getArchiveSettings)
	protected.PUT("/api/settings/archive", putArchiveSettings)
	protected.POST("/api/settings/cloud/dropbox", postConnectDropbox)
	protected.POST("/api/settings/cloud/google-drive", postConnectGoogleDrive)
	protected.DELETE("/api/settings/cloud/:provider", deleteCloudProvider)

	protected.POST("/api/optimize/cache", postOptimizeCache)
	protected.POST("/api/optimize/database", postOptimizeDatabase)
	protected.POST("/api/optimize/logs", postOptimizeLogs)

	protected.GET("/api/statistics", getStatistics)

	return router
}
