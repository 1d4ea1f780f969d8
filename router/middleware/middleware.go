package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/onyxcmd/onyxd/analyzer"
	"github.com/onyxcmd/onyxd/archive"
	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/eventlog"
	"github.com/onyxcmd/onyxd/host"
	"github.com/onyxcmd/onyxd/loader"
	"github.com/onyxcmd/onyxd/optimizer"
	"github.com/onyxcmd/onyxd/registry"
)

// AttachRequestID attaches a unique ID to the incoming HTTP request so that
// any errors that are generated or returned to the client will include this
// reference allowing for an easier time identifying the specific request
// that failed for the user.
func AttachRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Set("logger", log.WithField("request_id", id))
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// AttachComponents attaches the daemon's shared components to the request
// context so handlers can extract them without package-level state.
func AttachComponents(ld *loader.Loader, reg *registry.Registry, checker *analyzer.Checker, arc *archive.Archive, events *eventlog.Logger, opt *optimizer.Optimizer, site *host.Site) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("loader", ld)
		c.Set("registry", reg)
		c.Set("checker", checker)
		c.Set("archive", arc)
		c.Set("eventlog", events)
		c.Set("optimizer", opt)
		c.Set("site", site)
		c.Next()
	}
}

// SetAccessControlHeaders sets the CORS headers for the response.
func SetAccessControlHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequireAuthorization authenticates the request against the configured
// bearer token. Failed attempts are recorded as security events with the
// client address.
func RequireAuthorization() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		token := config.Get().AuthenticationToken

		if len(auth) != 2 || auth[0] != "Bearer" || token == "" ||
			subtle.ConstantTimeCompare([]byte(auth[1]), []byte(token)) != 1 {
			ExtractEventLogger(c).Security("authorization_failed", "Rejected request with missing or invalid token", "", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "You are not authorized to access this endpoint.",
				"code":  "permission_denied",
			})
			return
		}
		c.Next()
	}
}

// CaptureAndAbort aborts the request and attaches the provided error to the
// gin context so it can be reported properly by the error capture
// middleware. If the error is missing a stack, one is attached.
func CaptureAndAbort(c *gin.Context, err error) {
	c.Abort()
	_ = c.Error(errors.WithStackIf(err))
}

// CaptureErrors is custom handler function allowing for errors bubbled up
// by c.Error() to be returned in a standardized format with tracking UUIDs
// on them for easier log searching.
func CaptureErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		err := c.Errors.Last()
		if err == nil || err.Err == nil {
			return
		}
		respondWithError(c, err.Err)
	}
}

func respondWithError(c *gin.Context, err error) {
	status, body := errorResponse(c, err)
	if status >= http.StatusInternalServerError {
		ExtractLogger(c).WithError(err).Error("error while handling request")
	} else {
		ExtractLogger(c).WithError(err).Debug("request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

// errorResponse maps domain errors onto HTTP statuses and the standard
// error envelope.
func errorResponse(c *gin.Context, err error) (int, gin.H) {
	body := gin.H{"request_id": c.GetString("request_id")}

	if e, ok := loader.AsError(err); ok {
		body["error"] = e.Message
		body["code"] = e.Code
		if e.Detail != nil {
			body["detail"] = e.Detail
		}
		return loaderStatus(e.Code), body
	}

	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, analyzer.ErrModuleNotFound):
		body["error"] = "Module not found."
		body["code"] = "module_not_found"
		return http.StatusNotFound, body
	case errors.Is(err, archive.ErrNotFound), errors.Is(err, host.ErrNotFound):
		body["error"] = "The requested item could not be found."
		body["code"] = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, archive.ErrUnknownType):
		body["error"] = "The archive record has an unrecognized item type."
		body["code"] = "unknown_type"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, archive.ErrNotArchived):
		body["error"] = "The archive record is not in archived status."
		body["code"] = "not_found"
		return http.StatusConflict, body
	case errors.Is(err, analyzer.ErrUnknownAutoFix):
		body["error"] = "Unknown auto-fix action."
		body["code"] = "unknown_action"
		return http.StatusBadRequest, body
	case errors.Is(err, archive.ErrProviderNotConnected):
		body["error"] = "The cloud provider is not connected."
		body["code"] = "provider_not_connected"
		return http.StatusBadRequest, body
	}

	body["error"] = "An unexpected error was encountered while processing this request."
	body["code"] = "internal_error"
	return http.StatusInternalServerError, body
}

func loaderStatus(code string) int {
	switch code {
	case loader.CodeModuleNotFound:
		return http.StatusNotFound
	case loader.CodeModuleExists:
		return http.StatusConflict
	case loader.CodeInvalidModule, loader.CodeInvalidFile, loader.CodeSyntaxError,
		loader.CodeConflictsDetected, loader.CodeNoMainFile:
		return http.StatusUnprocessableEntity
	case loader.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case loader.CodeUploadFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ExtractLogger pulls the request-scoped logger out of the context.
func ExtractLogger(c *gin.Context) *log.Entry {
	v, ok := c.Get("logger")
	if !ok {
		return log.WithField("request_id", c.GetString("request_id"))
	}
	return v.(*log.Entry)
}

func ExtractLoader(c *gin.Context) *loader.Loader {
	return c.MustGet("loader").(*loader.Loader)
}

func ExtractRegistry(c *gin.Context) *registry.Registry {
	return c.MustGet("registry").(*registry.Registry)
}

func ExtractChecker(c *gin.Context) *analyzer.Checker {
	return c.MustGet("checker").(*analyzer.Checker)
}

func ExtractArchive(c *gin.Context) *archive.Archive {
	return c.MustGet("archive").(*archive.Archive)
}

func ExtractEventLogger(c *gin.Context) *eventlog.Logger {
	return c.MustGet("eventlog").(*eventlog.Logger)
}

func ExtractOptimizer(c *gin.Context) *optimizer.Optimizer {
	return c.MustGet("optimizer").(*optimizer.Optimizer)
}

func ExtractSite(c *gin.Context) *host.Site {
	return c.MustGet("site").(*host.Site)
}
