package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// ExposedHeaders are readable by browser clients.
var ExposedHeaders = []string{"Content-Disposition", "X-Converted-Count", "X-Duplicate-Entries", RequestIDHeader}

func CORS() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", RequestIDHeader}
	config.ExposeHeaders = ExposedHeaders

	return cors.New(config)
}
