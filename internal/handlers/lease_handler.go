package handlers

import (
	"strconv"
	"time"

	"leasehub/internal/middleware"
	"leasehub/internal/services"
	"leasehub/pkg/errors"
	"leasehub/pkg/pagination"
	"leasehub/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreateLeaseRequest 创建租约请求，时间使用 RFC3339
type CreateLeaseRequest struct {
	UnitID    uint      `json:"unit_id"`
	TenantID  uint      `json:"tenant_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Amount    *float64  `json:"amount"`
	Status    string    `json:"status"`
}

// UpdateLeaseRequest 部分更新请求，未传的字段不修改
type UpdateLeaseRequest struct {
	UnitID    *uint      `json:"unit_id"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Amount    *float64   `json:"amount"`
	Status    *string    `json:"status"`
}

type LeaseHandler struct {
	service *services.LeaseService
	sweeper *services.ExpirySweeper
}

func NewLeaseHandler(service *services.LeaseService, sweeper *services.ExpirySweeper) *LeaseHandler {
	return &LeaseHandler{
		service: service,
		sweeper: sweeper,
	}
}

// Create 创建租约
func (h *LeaseHandler) Create(c *gin.Context) {
	scope, ok := middleware.GetScope(c)
	if !ok {
		response.Unauthorized(c, "请先登录")
		return
	}

	var req CreateLeaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误: "+err.Error())
		return
	}

	lease, err := h.service.CreateLease(c.Request.Context(), services.CreateLeaseInput{
		UnitID:    req.UnitID,
		TenantID:  req.TenantID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Amount:    req.Amount,
		Status:    req.Status,
	}, scope)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "租约创建成功", lease)
}

// GetByID 获取租约
func (h *LeaseHandler) GetByID(c *gin.Context) {
	scope, ok := middleware.GetScope(c)
	if !ok {
		response.Unauthorized(c, "请先登录")
		return
	}

	lease, err := h.service.GetLease(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !scope.CanAccessProperty(lease.PropertyID) {
		response.FromError(c, errors.AccessDenied("无权查看其他物业的租约"))
		return
	}

	response.Success(c, lease)
}

// GetAll 分页查询租约，非管理员只能看到所属物业
func (h *LeaseHandler) GetAll(c *gin.Context) {
	scope, ok := middleware.GetScope(c)
	if !ok {
		response.Unauthorized(c, "请先登录")
		return
	}

	pageParams := pagination.ParsePageParams(c)

	filter := services.LeaseFilter{
		Status: c.Query("status"),
	}
	var err error
	if filter.UnitID, err = parseUintQuery(c, "unit_id"); err != nil {
		response.BadRequest(c, "unit_id 格式错误")
		return
	}
	if filter.TenantID, err = parseUintQuery(c, "tenant_id"); err != nil {
		response.BadRequest(c, "tenant_id 格式错误")
		return
	}
	if v := c.Query("include_deleted"); v != "" {
		if filter.IncludeDeleted, err = strconv.ParseBool(v); err != nil {
			response.BadRequest(c, "include_deleted 格式错误")
			return
		}
	}

	if !scope.IsPrivileged() {
		if scope.PropertyID == 0 {
			response.FromError(c, errors.AccessDenied("当前账号未绑定物业"))
			return
		}
		filter.PropertyID = scope.PropertyID
	}

	leases, total, err := h.service.ListLeases(c.Request.Context(), filter, pageParams.Page, pageParams.PageSize)
	if err != nil {
		response.FromError(c, err)
		return
	}

	pageInfo := pagination.NewPageInfo(pageParams.Page, pageParams.PageSize, total)
	response.SuccessWithPage(c, leases, pageInfo)
}

// Update 更新租约
func (h *LeaseHandler) Update(c *gin.Context) {
	scope, ok := middleware.GetScope(c)
	if !ok {
		response.Unauthorized(c, "请先登录")
		return
	}

	var req UpdateLeaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "参数错误: "+err.Error())
		return
	}

	lease, err := h.service.UpdateLease(c.Request.Context(), c.Param("id"), services.UpdateLeaseInput{
		UnitID:    req.UnitID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Amount:    req.Amount,
		Status:    req.Status,
	}, scope)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "租约更新成功", lease)
}

// Cancel 取消租约（幂等）
func (h *LeaseHandler) Cancel(c *gin.Context) {
	scope, ok := middleware.GetScope(c)
	if !ok {
		response.Unauthorized(c, "请先登录")
		return
	}

	lease, err := h.service.CancelLease(c.Request.Context(), c.Param("id"), scope)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "租约已取消", lease)
}

// Sweep 手动触发到期清扫
func (h *LeaseHandler) Sweep(c *gin.Context) {
	scope, ok := middleware.GetScope(c)
	if !ok {
		response.Unauthorized(c, "请先登录")
		return
	}

	result, err := h.sweeper.RunSweep(c.Request.Context(), scope)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, result)
}

func parseUintQuery(c *gin.Context, key string) (uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
