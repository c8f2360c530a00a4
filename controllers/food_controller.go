package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nutrilog/services"
)

type FoodController struct {
	Foods   *services.EdamamService
	Planner *services.MealPlanService
}

func NewFoodController(foods *services.EdamamService, planner *services.MealPlanService) *FoodController {
	return &FoodController{Foods: foods, Planner: planner}
}

// GET /foods/search?q=apple
func (fc *FoodController) Search(c *gin.Context) {
	out, err := fc.Foods.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// POST /foods/suggest
func (fc *FoodController) Suggest(c *gin.Context) {
	var req services.SuggestRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := fc.Planner.SuggestFoods(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": out})
}

// POST /mealplans/generate
func (fc *FoodController) GeneratePlan(c *gin.Context) {
	var req services.MealPlanRequest
	if !bindJSON(c, &req) {
		return
	}
	plan, err := fc.Planner.GeneratePlan(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}
