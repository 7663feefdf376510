package server

import (
	"time"

	"github.com/confseat/confseat/internal/api/handlers"
	"github.com/confseat/confseat/internal/api/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func NewRouter(svc handlers.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	// Cors
	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	h := handlers.New(svc)
	router.POST("/user", h.AddUser)
	router.POST("/conference", h.AddConference)
	router.POST("/book", h.Book)
	router.GET("/booking/:id", h.GetBookingStatus)
	router.POST("/confirm", h.Confirm)
	router.POST("/cancel", h.Cancel)
	router.GET("/conference/:name/bookings", h.GetConferenceBookings)

	return router
}
