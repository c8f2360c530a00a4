package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nutrilog/apperr"
	"nutrilog/models"
	"nutrilog/utils"
)

// POST /targets
// Returns BMI plus BMR, TDEE and the calorie and macro targets for a profile.
func ComputeTargets(c *gin.Context) {
	var p models.Profile
	if !bindJSON(c, &p) {
		return
	}
	targets, err := utils.ComputeTargets(p)
	if err != nil {
		respondError(c, apperr.Validation("%v", err))
		return
	}
	bmi, err := utils.CalculateBMI(p.HeightCm, p.WeightKg)
	if err != nil {
		respondError(c, apperr.Validation("%v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bmi":         bmi,
		"bmiCategory": utils.BMICategory(bmi),
		"targets":     targets,
	})
}
