package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/usersvc/usersvc/internal/users"
)

func healthCheck(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := as.Health.Status(c.Request.Context())

		services := gin.H{}
		for name, checkErr := range results {
			services[name] = statusText(checkErr)
		}

		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"timestamp": time.Now().Format(time.RFC3339),
				"error":     err.Error(),
				"services":  services,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"services":  services,
		})
	}
}

func statusText(err error) string {
	if err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func listUsers(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := as.UserService.ListUsers(c.Request.Context())
		if err != nil {
			respondError(c, as.Logger, err, "Failed to list users")
			return
		}

		c.JSON(http.StatusOK, list)
	}
}

func getUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		user, err := as.UserService.GetUser(c.Request.Context(), userID)
		if err != nil {
			respondError(c, as.Logger, err, "Failed to get user")
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

func createUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req users.CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		user, err := as.UserService.CreateUser(c.Request.Context(), &req)
		if err != nil {
			respondError(c, as.Logger, err, "Failed to create user")
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

func updateUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		var req users.UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		user, err := as.UserService.UpdateUser(c.Request.Context(), userID, &req)
		if err != nil {
			respondError(c, as.Logger, err, "Failed to update user")
			return
		}

		c.JSON(http.StatusOK, user)
	}
}

func deleteUser(as *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		if err := as.UserService.DeleteUser(c.Request.Context(), userID); err != nil {
			respondError(c, as.Logger, err, "Failed to delete user")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "User deleted successfully",
			"id":      userID,
		})
	}
}

// respondError maps user errors to HTTP statuses. Anything unexpected is
// logged and hidden behind a generic 500.
func respondError(c *gin.Context, logger *zap.Logger, err error, msg string) {
	switch {
	case users.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case users.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case users.IsAlreadyExists(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error(msg,
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
