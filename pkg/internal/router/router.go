// Package router 管理路由配置，用于设置HTTP服务的路由.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/mediavault/pkg/internal/handle"
)

// RegisterAssetRoutes 注册资产与流水线查询路由.
//
//	POST /assets/uploads/presign   -> 创建或复用资产并签发上传地址
//	POST /assets/uploads/complete  -> 确认上传，触发流水线
//	GET  /assets                   -> 调用方的资产列表
//	GET  /assets/jobs              -> 任务账本
//	GET  /assets/metrics           -> 聚合指标
//	GET  /assets/:id               -> 资产详情与下载地址
//
// reads 只作用于查询路由，通常是响应缓存.
func RegisterAssetRoutes(g *gin.RouterGroup, h *handle.Handlers, reads ...gin.HandlerFunc) {
	reads = reads[:len(reads):len(reads)]

	assets := g.Group("/assets")
	{
		uploads := assets.Group("/uploads")
		{
			uploads.POST("/presign", h.PresignUpload)
			uploads.POST("/complete", h.CompleteUpload)
		}

		assets.GET("", append(reads, h.ListAssets)...)
		assets.GET("/jobs", append(reads, h.ListJobs)...)
		assets.GET("/metrics", h.AssetMetrics)
		assets.GET("/:id", append(reads, h.GetAsset)...)
	}
}
