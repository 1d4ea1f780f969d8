package router

import (
	"net/http"

	"github.com/Jeffail/gabs/v2"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/router/middleware"
)

// getConfigRaw returns the raw YAML configuration file with comments
// preserved.
func getConfigRaw(c *gin.Context) {
	configPath := config.Get().Path()
	if configPath == "" {
		configPath = config.DefaultLocation
	}

	content, err := config.ReadRawConfig(configPath)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	c.Header("Content-Type", "application/x-yaml; charset=utf-8")
	c.Data(http.StatusOK, "application/x-yaml", content)
}

// putConfigRaw replaces the entire configuration file with new YAML
// content. Only basic YAML syntax is validated so unknown fields and
// comments survive the write.
func putConfigRaw(c *gin.Context) {
	var req ConfigPutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload"})
		return
	}

	var testNode yaml.Node
	if err := yaml.Unmarshal([]byte(req.Content), &testNode); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid YAML syntax: " + err.Error(),
		})
		return
	}

	configPath := config.Get().Path()
	if configPath == "" {
		configPath = config.DefaultLocation
	}

	if err := config.WriteRawConfig(configPath, []byte(req.Content)); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	// Reload the in-memory state. The file write already succeeded, so a
	// reload failure is reported but does not fail the request.
	if err := config.FromFile(configPath); err != nil {
		log.WithError(err).Warn("config file written successfully but failed to reload")
	}

	c.JSON(http.StatusOK, ConfigUpdateResponse{Applied: true})
}

// patchConfig updates specific configuration values addressed by dot
// notation paths, e.g. {"api.port": 8090, "archive.retention_days": 14}.
func patchConfig(c *gin.Context) {
	var req ConfigPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request payload"})
		return
	}

	configPath := config.Get().Path()
	if configPath == "" {
		configPath = config.DefaultLocation
	}

	rawYAML, err := config.ReadRawConfig(configPath)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	current := map[string]interface{}{}
	if err := yaml.Unmarshal(rawYAML, &current); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error: "failed to parse existing config: " + err.Error(),
		})
		return
	}

	container := gabs.Wrap(current)
	for path, value := range req.Updates {
		if _, err := container.SetP(value, path); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Error: "failed to update path '" + path + "': " + err.Error(),
			})
			return
		}
	}

	updatedYAML, err := yaml.Marshal(container.Data())
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	if err := config.WriteRawConfig(configPath, updatedYAML); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	if err := config.FromFile(configPath); err != nil {
		log.WithError(err).Warn("config file updated successfully but failed to reload")
	}

	c.JSON(http.StatusOK, ConfigUpdateResponse{Applied: true})
}
