package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/mediavault/pkg/internal/types"
	"github.com/yeisme/mediavault/pkg/middleware"
)

// PresignUpload 创建或复用资产并返回上传地址.
func (h *Handlers) PresignUpload(c *gin.Context) {
	user, err := caller(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var req types.PresignUploadRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.Assets.PresignUpload(c.Request.Context(), user, &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.log.Info().Str("asset_id", res.AssetID).Str("user", user).Bool("reused", res.Reused).Msg("upload url issued")

	c.JSON(http.StatusOK, res)
}

// CompleteUpload 确认上传完成.
func (h *Handlers) CompleteUpload(c *gin.Context) {
	user, err := caller(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var req types.CompleteUploadRequest
	if err := bindJSON(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	asset, err := h.Assets.CompleteUpload(c.Request.Context(), req.AssetID, user)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, asset)
}

// GetAsset 资产详情.
func (h *Handlers) GetAsset(c *gin.Context) {
	user, err := caller(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.Assets.GetAsset(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// ListAssets 调用方的资产列表.
func (h *Handlers) ListAssets(c *gin.Context) {
	user, err := caller(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var req types.ListAssetsRequest
	if err := bindQuery(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.Assets.ListAssets(c.Request.Context(), user, &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// ListJobs 任务列表. 管理员可见全部资产的任务.
func (h *Handlers) ListJobs(c *gin.Context) {
	owner, err := h.scope(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var req types.ListJobsRequest
	if err := bindQuery(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.Jobs.GetProcessingJobs(c.Request.Context(), owner, &req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// AssetMetrics 资产与任务聚合指标.
func (h *Handlers) AssetMetrics(c *gin.Context) {
	owner, err := h.scope(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.Jobs.GetAssetMetrics(c.Request.Context(), owner)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// scope 管理员返回空 owner 表示不限.
func (h *Handlers) scope(c *gin.Context) (string, error) {
	user, err := caller(c)
	if err != nil {
		return "", err
	}

	if middleware.GetRole(c) >= middleware.RoleAdmin && c.Query("all") == "true" {
		return "", nil
	}

	return user, nil
}
