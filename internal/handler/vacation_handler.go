package handler

import (
	"net/http"
	"time"

	"github.com/chloHabitto/habitto/internal/db"
	"github.com/chloHabitto/habitto/internal/service"
	"github.com/gin-gonic/gin"
)

// ListVacations 返回休假窗口列表
func (a *API) ListVacations(c *gin.Context) {
	vacations, err := a.vacations.List(a.userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取休假列表失败")
		return
	}

	items := make([]gin.H, 0, len(vacations))
	for _, vacation := range vacations {
		items = append(items, serializeVacation(vacation))
	}

	c.JSON(http.StatusOK, gin.H{"vacations": items})
}

// CreateVacation 新建休假窗口，窗口内日期在连胜中按中性日处理
func (a *API) CreateVacation(c *gin.Context) {
	var payload struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		Reason    string `json:"reason"`
	}
	if !bindJSON(c, &payload, "请求参数不合法") {
		return
	}

	start, err := time.ParseInLocation(dateFormat, payload.StartDate, time.Local)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的开始日期")
		return
	}
	end, err := time.ParseInLocation(dateFormat, payload.EndDate, time.Local)
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的结束日期")
		return
	}

	vacation, err := a.vacations.Create(service.VacationInput{
		UserID:    a.userID,
		StartDate: start,
		EndDate:   end,
		Reason:    payload.Reason,
	})
	if err != nil {
		respondError(c, http.StatusBadRequest, "保存休假窗口失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"vacation": serializeVacation(*vacation)})
}

// DeleteVacation 删除休假窗口
func (a *API) DeleteVacation(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, "无效的休假ID")
		return
	}

	if err := a.vacations.Delete(id); err != nil {
		respondError(c, http.StatusInternalServerError, "删除休假窗口失败")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func serializeVacation(vacation db.Vacation) gin.H {
	return gin.H{
		"id":         vacation.ID,
		"start_date": vacation.StartDate.Format(dateFormat),
		"end_date":   vacation.EndDate.Format(dateFormat),
		"reason":     vacation.Reason,
	}
}
