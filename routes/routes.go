package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nutrilog/controllers"
	"nutrilog/middlewares"
)

// Deps is everything the router hands to controllers.
type Deps struct {
	JWTSecret []byte
	Limiter   *middlewares.RateLimiter
	Meals     *controllers.MealController
	Diary     *controllers.DiaryController
	Foods     *controllers.FoodController
	Analytics *controllers.AnalyticsController
	Realtime  *controllers.RealtimeController
	// Dev is mounted only when set; main sets it in debug mode.
	Dev *controllers.DevController
}

func SetupRouter(d Deps) *gin.Engine {
	controllers.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestLogger(), middlewares.Metrics())

	// Public
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.Dev != nil {
		r.POST("/dev/token", d.Dev.Token)
	}

	// Protected
	api := r.Group("/")
	api.Use(middlewares.AuthMiddleware(d.JWTSecret))

	// vendor-backed routes are rate limited per user
	meals := api.Group("/meals")
	meals.Use(middlewares.RateLimit(d.Limiter))
	{
		meals.POST("/segment", d.Meals.Segment)
		meals.POST("/confirm", d.Meals.Confirm)
		meals.POST("/nutrition", d.Meals.Nutrition)
	}

	diary := api.Group("/diary")
	{
		diary.POST("/meals", d.Diary.AddMeal)
		diary.GET("/meals", d.Diary.ListMeals)
		diary.GET("/meals/:id", d.Diary.GetMeal)
		diary.DELETE("/meals/:id", d.Diary.DeleteMeal)
		diary.DELETE("/meals/:id/items/:itemId", d.Diary.RemoveItem)
		diary.GET("/summary", d.Diary.Summary)
		diary.POST("/progress", d.Diary.Progress)
	}

	api.POST("/targets", controllers.ComputeTargets)

	analytics := api.Group("/analytics")
	{
		analytics.POST("/summary", d.Analytics.Summary)
		analytics.POST("/weekly", d.Analytics.WeeklyOverview)
	}

	foods := api.Group("/foods")
	foods.Use(middlewares.RateLimit(d.Limiter))
	{
		foods.GET("/search", d.Foods.Search)
		foods.POST("/suggest", d.Foods.Suggest)
	}
	api.POST("/mealplans/generate", middlewares.RateLimit(d.Limiter), d.Foods.GeneratePlan)

	if d.Realtime != nil {
		api.GET("/ws", d.Realtime.DiaryWS)
	}

	return r
}
