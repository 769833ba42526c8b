package app

import "github.com/gin-gonic/gin"

// Module defines the contract for a self-registering console module.
// Its pages are mounted behind the session guard.
type Module interface {
	RegisterRoutes(pages *gin.RouterGroup)
}

// GuestModule is implemented by modules that also serve pages to visitors
// without a session, such as the login form.
type GuestModule interface {
	RegisterGuestRoutes(guest *gin.RouterGroup)
}
