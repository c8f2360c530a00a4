package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nutrilog/middlewares"
	"nutrilog/models"
	"nutrilog/services"
)

type DiaryController struct {
	Meals *services.MealService
	now   func() time.Time
}

func NewDiaryController(meals *services.MealService) *DiaryController {
	return &DiaryController{Meals: meals, now: time.Now}
}

func (dc *DiaryController) today() string {
	return dc.now().Format(models.DateLayout)
}

type addMealRequest struct {
	Date     string                     `json:"date" binding:"omitempty,isodate"`
	MealType string                     `json:"mealType" binding:"required,mealtype"`
	Items    []services.MealItemRequest `json:"items"`
	Source   string                     `json:"source" binding:"max=40"`
	PhotoURL string                     `json:"photoUrl" binding:"omitempty,url"`
}

// POST /diary/meals
// 201 when a new entry was stored, 200 when the items were appended.
func (dc *DiaryController) AddMeal(c *gin.Context) {
	var req addMealRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Date == "" {
		req.Date = dc.today()
	}
	mt, _ := models.ParseMealType(req.MealType)

	entry, created, err := dc.Meals.AddMealEntry(
		c.Request.Context(), middlewares.UserID(c), req.Date, mt, req.Items,
		services.EntryMeta{Source: req.Source, PhotoURL: req.PhotoURL},
	)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, entry)
}

// GET /diary/meals?from=YYYY-MM-DD&to=YYYY-MM-DD
func (dc *DiaryController) ListMeals(c *gin.Context) {
	from := c.DefaultQuery("from", dc.today())
	entries, err := dc.Meals.ListMealEntries(c.Request.Context(), middlewares.UserID(c), from, c.Query("to"))
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []models.MealEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// GET /diary/meals/:id
func (dc *DiaryController) GetMeal(c *gin.Context) {
	entry, err := dc.Meals.GetMealEntry(c.Request.Context(), middlewares.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// DELETE /diary/meals/:id
func (dc *DiaryController) DeleteMeal(c *gin.Context) {
	if err := dc.Meals.DeleteMealEntry(c.Request.Context(), middlewares.UserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /diary/meals/:id/items/:itemId
// Removing the last item deletes the entry and answers 204.
func (dc *DiaryController) RemoveItem(c *gin.Context) {
	entry, deleted, err := dc.Meals.RemoveItem(c.Request.Context(), middlewares.UserID(c), c.Param("id"), c.Param("itemId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if deleted {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GET /diary/summary?date=YYYY-MM-DD
func (dc *DiaryController) Summary(c *gin.Context) {
	sum, err := dc.Meals.DailySummary(c.Request.Context(), middlewares.UserID(c), c.DefaultQuery("date", dc.today()))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// POST /diary/progress  {"date": "...", "profile": {...}}
func (dc *DiaryController) Progress(c *gin.Context) {
	var req struct {
		Date    string         `json:"date" binding:"omitempty,isodate"`
		Profile models.Profile `json:"profile"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.Date == "" {
		req.Date = dc.today()
	}
	p, err := dc.Meals.Progress(c.Request.Context(), middlewares.UserID(c), req.Date, req.Profile)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
