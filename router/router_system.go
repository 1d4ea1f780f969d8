package router

import (
	"net/http"
	"runtime"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/disk"
	shost "github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/router/middleware"
	"github.com/onyxcmd/onyxd/system"
)

// getSystemInformation returns daemon and machine details.
func getSystemInformation(c *gin.Context) {
	res := SystemInformationResponse{
		Version:      system.Version,
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUCount:     runtime.NumCPU(),
	}

	if info, err := shost.Info(); err == nil {
		res.KernelVersion = info.KernelVersion
		res.Uptime = info.Uptime
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		res.MemoryTotal = vm.Total
		res.MemoryUsed = vm.UsedPercent
	}
	if usage, err := disk.Usage(config.Get().System.RootDirectory); err == nil {
		res.DiskTotal = usage.Total
		res.DiskFree = usage.Free
	}

	c.JSON(http.StatusOK, res)
}

func postOptimizeCache(c *gin.Context) {
	n := middleware.ExtractOptimizer(c).ClearCaches()
	c.JSON(http.StatusOK, gin.H{"items_cleared": n})
}

func postOptimizeDatabase(c *gin.Context) {
	res, err := middleware.ExtractOptimizer(c).CleanDatabase()
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func postOptimizeLogs(c *gin.Context) {
	removed, err := middleware.ExtractOptimizer(c).CleanLogs()
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// getStatistics returns module execution bookkeeping plus aggregated
// sample counts for the requested window.
func getStatistics(c *gin.Context) {
	days := 30
	if v := c.Query("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	reg := middleware.ExtractRegistry(c)
	mods, err := reg.All()
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	samples, err := reg.SamplesSince(days)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	type moduleStat struct {
		ModuleID       string      `json:"module_id"`
		Name           string      `json:"name"`
		Status         string      `json:"status"`
		ExecutionCount int64       `json:"execution_count"`
		LastExecuted   interface{} `json:"last_executed,omitempty"`
	}
	stats := make([]moduleStat, 0, len(mods))
	for _, m := range mods {
		s := moduleStat{
			ModuleID:       m.ModuleID,
			Name:           m.Name,
			Status:         m.Status,
			ExecutionCount: m.ExecutionCount,
		}
		if m.LastExecuted != nil {
			s.LastExecuted = m.LastExecuted
		}
		stats = append(stats, s)
	}

	c.JSON(http.StatusOK, gin.H{
		"modules": stats,
		"samples": samples,
		"days":    days,
	})
}
