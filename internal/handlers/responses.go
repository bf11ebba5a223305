package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Failure struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ConvertRequest struct {
	URL        string `json:"url"`
	SpotifyURL string `json:"spotifyUrl"`
}

type ConvertResponse struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type StatsResponse struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Errors    int `json:"errors"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func ResponseFailure(ctx *gin.Context, status int, err, message string) {
	ctx.AbortWithStatusJSON(status, Failure{Error: err, Message: message})
}

func ResponseBadRequest(ctx *gin.Context, err, message string) {
	ResponseFailure(ctx, http.StatusBadRequest, err, message)
}

func ResponseInternalError(ctx *gin.Context, message string) {
	ResponseFailure(ctx, http.StatusInternalServerError, "Internal server error", message)
}

func ResponseSuccess(ctx *gin.Context, data any) {
	ctx.JSON(http.StatusOK, data)
}
