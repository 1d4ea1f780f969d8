package router

import (
	"net/http"
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/loader"
	"github.com/onyxcmd/onyxd/router/middleware"
)

// getModules returns every registered module.
func getModules(c *gin.Context) {
	reg := middleware.ExtractRegistry(c)

	var (
		mods interface{}
		err  error
	)
	if status := c.Query("status"); status != "" {
		mods, err = reg.ByStatus(status)
	} else {
		mods, err = reg.All()
	}
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": mods})
}

// getModule returns a single registry row.
func getModule(c *gin.Context) {
	m, err := middleware.ExtractRegistry(c).Get(c.Param("module"))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// postInstallModule accepts a multipart upload, spools it to the
// temporary directory, and hands it to the loader.
func postInstallModule(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		middleware.CaptureAndAbort(c, &loader.Error{
			Code:    loader.CodeUploadFailed,
			Message: "No file was attached to the request.",
		})
		return
	}

	spool := filepath.Join(config.Get().System.TmpDirectory, uuid.New().String()+filepath.Ext(header.Filename))
	if err := c.SaveUploadedFile(header, spool); err != nil {
		middleware.CaptureAndAbort(c, errors.Wrap(err, "router: failed to spool uploaded file"))
		return
	}
	defer os.Remove(spool)

	m, err := middleware.ExtractLoader(c).Install(c.Request.Context(), loader.Upload{
		Name: header.Filename,
		Size: header.Size,
		Path: spool,
	})
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func postScanRegisterModules(c *gin.Context) {
	n, err := middleware.ExtractLoader(c).ScanAndRegisterModules()
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, ModuleScanRegisterResponse{Registered: n})
}

func postModuleActivate(c *gin.Context) {
	if err := middleware.ExtractLoader(c).Activate(c.Param("module")); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	m, err := middleware.ExtractRegistry(c).Get(c.Param("module"))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func postModuleDeactivate(c *gin.Context) {
	if err := middleware.ExtractLoader(c).Deactivate(c.Param("module")); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	m, err := middleware.ExtractRegistry(c).Get(c.Param("module"))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func deleteModule(c *gin.Context) {
	if err := middleware.ExtractLoader(c).Delete(c.Param("module")); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// postModuleExecute runs an active module on demand and returns its
// process output.
func postModuleExecute(c *gin.Context) {
	moduleID := c.Param("module")
	output, err := middleware.ExtractLoader(c).ExecuteModule(c.Request.Context(), moduleID)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, ModuleExecuteResponse{ModuleID: moduleID, Output: output})
}

// getModuleScan runs the full static analysis pipeline against a
// registered module.
func getModuleScan(c *gin.Context) {
	report, err := middleware.ExtractChecker(c).ScanModule(c.Param("module"))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// postModuleAutoFix applies a named auto-fix to the module's main file.
func postModuleAutoFix(c *gin.Context) {
	var req AutoFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload"})
		return
	}

	m, err := middleware.ExtractRegistry(c).Get(c.Param("module"))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	path := filepath.Join(config.Get().Modules.Directory, m.FilePath)
	applied, err := middleware.ExtractChecker(c).ApplyAutoFix(path, req.Action)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, AutoFixResponse{Applied: applied})
}

func getModuleConfig(c *gin.Context) {
	m, err := middleware.ExtractRegistry(c).Get(c.Param("module"))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	values := map[string]interface{}{}
	if m.Config != "" {
		if err := json.Unmarshal([]byte(m.Config), &values); err != nil {
			middleware.CaptureAndAbort(c, errors.Wrap(err, "router: malformed module configuration"))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"module_id": m.ModuleID, "config": values})
}

func putModuleConfig(c *gin.Context) {
	var req ModuleConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload"})
		return
	}

	moduleID := c.Param("module")
	if err := middleware.ExtractLoader(c).UpdateConfig(moduleID, req.Config); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"module_id": moduleID, "config": req.Config})
}
