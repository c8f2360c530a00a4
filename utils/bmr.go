package utils

import (
	"errors"
	"fmt"
	"math"

	"nutrilog/models"
)

// CalculateBMI expects height in centimeters and weight in kilograms.
func CalculateBMI(heightCm, weightKg float64) (float64, error) {
	if heightCm <= 0 || weightKg <= 0 {
		return 0, errors.New("height and weight must be positive")
	}
	// Sanity checks to avoid garbage input
	if heightCm < 50 || heightCm > 250 || weightKg < 10 || weightKg > 400 {
		return 0, errors.New("height/weight out of plausible range")
	}
	h := heightCm / 100.0
	return weightKg / (h * h), nil
}

func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return "Underweight"
	case bmi < 25.0:
		return "Normal weight"
	case bmi < 30.0:
		return "Overweight"
	case bmi < 35.0:
		return "Obesity class I"
	case bmi < 40.0:
		return "Obesity class II"
	default:
		return "Obesity class III"
	}
}

var activityFactors = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

// Calorie offsets applied to TDEE per goal.
const (
	loseOffset = -500.0
	gainOffset = 300.0
)

// Macro split of target calories: protein / carbs / fat.
const (
	proteinShare = 0.30
	carbShare    = 0.40
	fatShare     = 0.30
)

// BMR is the Mifflin-St Jeor basal metabolic rate in kcal/day.
func BMR(p models.Profile) (float64, error) {
	if p.WeightKg <= 0 || p.HeightCm <= 0 || p.Age <= 0 {
		return 0, errors.New("weight, height and age must be positive")
	}
	base := 10*p.WeightKg + 6.25*p.HeightCm - 5*float64(p.Age)
	switch p.Sex {
	case models.Male:
		return base + 5, nil
	case models.Female:
		return base - 161, nil
	default:
		return 0, fmt.Errorf("unsupported sex %q", p.Sex)
	}
}

// TDEE scales BMR by the activity factor.
func TDEE(bmr float64, activityLevel string) (float64, error) {
	f, ok := activityFactors[activityLevel]
	if !ok {
		return 0, fmt.Errorf("unknown activity level %q", activityLevel)
	}
	return bmr * f, nil
}

// ComputeTargets derives BMR, TDEE, calorie and macro targets from a profile.
func ComputeTargets(p models.Profile) (models.Targets, error) {
	bmr, err := BMR(p)
	if err != nil {
		return models.Targets{}, err
	}
	tdee, err := TDEE(bmr, p.ActivityLevel)
	if err != nil {
		return models.Targets{}, err
	}
	cal := tdee
	switch p.Goal {
	case models.GoalLose:
		cal += loseOffset
	case models.GoalGain:
		cal += gainOffset
	}
	if cal < bmr {
		cal = bmr
	}
	return models.Targets{
		BMR:      round1(bmr),
		TDEE:     round1(tdee),
		Calories: math.Round(cal),
		Protein:  round1(cal * proteinShare / 4),
		Carbs:    round1(cal * carbShare / 4),
		Fat:      round1(cal * fatShare / 9),
	}, nil
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
