package models

// Sex drives the BMR constant.
type Sex string

const (
	Male   Sex = "male"
	Female Sex = "female"
)

// Goal shifts calories away from maintenance.
type Goal string

const (
	GoalLose     Goal = "lose"
	GoalMaintain Goal = "maintain"
	GoalGain     Goal = "gain"
)

// Profile is the body data targets are computed from.
type Profile struct {
	WeightKg      float64 `json:"weightKg" binding:"required,gt=0"`
	HeightCm      float64 `json:"heightCm" binding:"required,gt=0"`
	Age           int     `json:"age" binding:"required,gt=0"`
	Sex           Sex     `json:"sex" binding:"required,oneof=male female"`
	ActivityLevel string  `json:"activityLevel" binding:"required,oneof=sedentary light moderate active very_active"`
	Goal          Goal    `json:"goal" binding:"omitempty,oneof=lose maintain gain"`
}
