package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-service/apperrors"
	"storefront-service/middlewares"
)

// respondError renders err as {success: false, message, ...}. Unclassified
// errors are logged with their detail and reported generically.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(apperrors.Internal, "unexpected error", err)
	}

	status := apperrors.HTTPStatus(appErr.Kind)
	body := gin.H{
		"success": false,
		"error":   string(appErr.Kind),
		"message": appErr.Message,
	}

	switch appErr.Kind {
	case apperrors.Internal:
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString(middlewares.ContextRequestID)),
			zap.Error(err))
		body["message"] = "Internal server error"
	case apperrors.QuantityExceedsStock:
		body["available"] = appErr.Available
	case apperrors.StockUnavailable:
		body["issues"] = appErr.Issues
		body["requiresCartRefresh"] = true
	}

	c.JSON(status, body)
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   string(apperrors.InvalidInput),
		"message": err.Error(),
	})
}

func isSuccess(c *gin.Context) bool {
	return c.Writer.Status() >= 200 && c.Writer.Status() < 300
}
