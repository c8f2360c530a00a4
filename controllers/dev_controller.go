package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"nutrilog/utils"
)

// DevController mints bearer tokens for local testing. Routes only mounts it
// in debug mode.
type DevController struct {
	Secret []byte
	TTL    time.Duration
}

func NewDevController(secret []byte) *DevController {
	return &DevController{Secret: secret, TTL: 24 * time.Hour}
}

type devTokenReq struct {
	UserID string `json:"userId" binding:"required,max=64"`
	Email  string `json:"email" binding:"omitempty,email"`
}

// POST /dev/token
func (d *DevController) Token(c *gin.Context) {
	var req devTokenReq
	if !bindJSON(c, &req) {
		return
	}
	tok, err := utils.GenerateJWT(d.Secret, req.UserID, req.Email, d.TTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "expiresIn": int(d.TTL.Seconds())})
}
