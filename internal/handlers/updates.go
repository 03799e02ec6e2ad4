package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/crlx1q/antimat/internal/models"
)

type checkUpdateResponse struct {
	HasUpdate      bool   `json:"hasUpdate"`
	CurrentVersion string `json:"currentVersion"`
	LatestVersion  string `json:"latestVersion,omitempty"`
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	DownloadURL    string `json:"downloadUrl,omitempty"`
	FileSize       int64  `json:"fileSize,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	Message        string `json:"message,omitempty"`
}

func (h HandlerSet) CheckUpdate(c *gin.Context) {
	result, err := h.updateService.Check(c.Request.Context(), c.Query("currentVersion"))
	if err != nil {
		h.fail(c, err)
		return
	}
	resp := checkUpdateResponse{
		HasUpdate:      result.HasUpdate,
		CurrentVersion: result.CurrentVersion,
		LatestVersion:  result.LatestVersion,
		Title:          result.Title,
		Description:    result.Description,
		DownloadURL:    result.DownloadURL,
		FileSize:       result.FileSize,
		FileName:       result.FileName,
	}
	if result.LatestVersion == "" {
		resp.Message = "Обновления не найдены"
	}
	respond(c, http.StatusOK, "", resp)
}

// DownloadRelease streams the current APK from object storage.
func (h HandlerSet) DownloadRelease(c *gin.Context) {
	rc, info, err := h.updateService.Download(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", models.APKContentType)
	c.Header("Content-Disposition", `attachment; filename="`+models.CurrentReleaseName+`"`)
	if info.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.log.Warn().Err(err).Msg("release download interrupted")
	}
}
