package router

import (
	"github.com/onyxcmd/onyxd/internal/models"
)

// ErrorResponse represents the common error payload returned by the API.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ModuleListResponse contains a list of registered modules.
type ModuleListResponse struct {
	Data []models.Module `json:"data"`
}

// ModuleExecuteResponse returns the output of an on-demand module run.
type ModuleExecuteResponse struct {
	ModuleID string `json:"module_id"`
	Output   string `json:"output"`
}

// ModuleScanRegisterResponse reports how many modules a directory sweep
// discovered and registered.
type ModuleScanRegisterResponse struct {
	Registered int `json:"registered"`
}

// ModuleConfigRequest carries a module configuration replacement.
type ModuleConfigRequest struct {
	Config map[string]interface{} `json:"config" binding:"required"`
}

// AutoFixRequest names the auto-fix action to apply to a module's file.
type AutoFixRequest struct {
	Action string `json:"action" binding:"required"`
}

// AutoFixResponse reports whether the file changed.
type AutoFixResponse struct {
	Applied bool `json:"applied"`
}

// LogListResponse contains a page of event log entries.
type LogListResponse struct {
	Data []models.LogEntry `json:"data"`
}

// ArchiveListResponse contains one page of archive records.
type ArchiveListResponse struct {
	Data    []models.ArchiveRecord `json:"data"`
	Total   int64                  `json:"total"`
	Page    int                    `json:"page"`
	PerPage int                    `json:"per_page"`
}

// ArchivePluginRequest identifies the plugin to archive and delete.
type ArchivePluginRequest struct {
	PluginFile     string `json:"plugin_file" binding:"required"`
	CompleteDelete bool   `json:"complete_delete"`
}

// BackupResponse returns the path of a created backup bundle.
type BackupResponse struct {
	Path string `json:"path"`
}

// CloudExportRequest names the provider and optionally a single record to
// bundle and upload.
type CloudExportRequest struct {
	Provider string `json:"provider" binding:"required"`
	RecordID uint   `json:"record_id"`
}

// ArchiveSettingsRequest updates the retention policy.
type ArchiveSettingsRequest struct {
	RetentionDays int `json:"retention_days"`
}

// DropboxConnectRequest stores a verified Dropbox access token.
type DropboxConnectRequest struct {
	Token string `json:"token" binding:"required"`
}

// GoogleDriveConnectRequest stores Google Drive OAuth credentials.
type GoogleDriveConnectRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ConfigPatchRequest defines the payload for patching specific config
// values using dot notation paths.
type ConfigPatchRequest struct {
	Updates map[string]interface{} `json:"updates" binding:"required"`
}

// ConfigPutRequest defines the payload for replacing the entire
// configuration file.
type ConfigPutRequest struct {
	Content string `json:"content" binding:"required"`
}

// ConfigUpdateResponse conveys the outcome of a configuration update.
type ConfigUpdateResponse struct {
	Applied bool `json:"applied"`
}

// SystemInformationResponse describes the daemon and the machine it runs
// on.
type SystemInformationResponse struct {
	Version       string  `json:"version"`
	OS            string  `json:"os"`
	Architecture  string  `json:"architecture"`
	KernelVersion string  `json:"kernel_version"`
	CPUCount      int     `json:"cpu_count"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    float64 `json:"memory_used_percent"`
	DiskTotal     uint64  `json:"disk_total"`
	DiskFree      uint64  `json:"disk_free"`
	Uptime        uint64  `json:"uptime"`
}
