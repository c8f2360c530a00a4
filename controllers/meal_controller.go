package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nutrilog/apperr"
	"nutrilog/logging"
	"nutrilog/middlewares"
	"nutrilog/models"
	"nutrilog/services"
	"nutrilog/utils"
)

// MealController drives the photo pipeline: segment, confirm, nutrition.
type MealController struct {
	Vision *services.LogMealService
	// Photos is optional; when set, uploads are archived before cleanup.
	Photos *utils.PhotoArchive
	Upload utils.UploadPolicy
}

func NewMealController(vision *services.LogMealService, photos *utils.PhotoArchive, upload utils.UploadPolicy) *MealController {
	return &MealController{Vision: vision, Photos: photos, Upload: upload}
}

// POST /meals/segment  multipart field "image"
func (mc *MealController) Segment(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		respondError(c, apperr.Validation("image file is required (form field 'image')"))
		return
	}
	img, err := utils.SaveImage(fh, mc.Upload)
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	defer func() {
		if err := img.Cleanup(); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("upload cleanup failed")
		}
	}()

	res, err := mc.Vision.Segment(ctx, img.Path)
	if err != nil {
		respondError(c, err)
		return
	}

	out := gin.H{"imageId": res.ImageID, "segmentation_results": res.Regions}
	if mc.Photos != nil {
		url, err := mc.Photos.Archive(ctx, middlewares.UserID(c), img.Path, img.ContentType)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("image_id", res.ImageID).Msg("photo archive failed")
		} else {
			out["photoUrl"] = url
		}
	}
	c.JSON(http.StatusOK, out)
}

// confirmRequest accepts three shapes, checked in this order:
// regions + picks, resolved selections, or the raw parallel lists.
type confirmRequest struct {
	ImageID          int64                       `json:"imageId" binding:"required,gt=0"`
	ConfirmedClass   []any                       `json:"confirmedClass"`
	Source           []any                       `json:"source"`
	FoodItemPosition []any                       `json:"food_item_position"`
	Selections       []models.Selection          `json:"selections"`
	Regions          []models.DetectedRegion     `json:"regions"`
	Picks            []services.SelectionRequest `json:"picks" binding:"omitempty,dive"`
}

func (r confirmRequest) payload() (services.ConfirmationPayload, error) {
	switch {
	case len(r.Picks) > 0:
		sel, err := services.ApplySelections(r.Regions, r.Picks)
		if err != nil {
			return services.ConfirmationPayload{}, err
		}
		return services.BuildConfirmation(r.ImageID, sel), nil
	case r.Selections != nil:
		return services.BuildConfirmation(r.ImageID, r.Selections), nil
	default:
		return services.ConfirmationPayload{
			ImageID:          r.ImageID,
			ConfirmedClass:   r.ConfirmedClass,
			Source:           r.Source,
			FoodItemPosition: r.FoodItemPosition,
		}, nil
	}
}

// POST /meals/confirm
func (mc *MealController) Confirm(c *gin.Context) {
	var req confirmRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := req.payload()
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := mc.Vision.Confirm(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /meals/nutrition  {"imageId": 123}
func (mc *MealController) Nutrition(c *gin.Context) {
	var req struct {
		ImageID int64 `json:"imageId" binding:"required,gt=0"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := mc.Vision.GetNutrition(c.Request.Context(), req.ImageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
