package main

import (
	"github.com/gin-gonic/gin"

	"github.com/cryptoperk/cryptoperk-backend/shared/utils"
)

// handleLogin echoes the validated identity back to the caller. Token
// validation itself happens in the auth middleware; reaching this handler
// means the DID token checked out.
func handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.OKResponse(c, "Login successful", gin.H{
			"issuer":         c.GetString("issuer"),
			"public_address": c.GetString("public_address"),
		})
	}
}
