package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// RentalAttributes tags the New Relic transaction started by nrgin with the
// vehicle and rental the request is about. It must run after nrgin.Middleware.
func RentalAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		for name, value := range routeIDs(c) {
			txn.AddAttribute(name, value)
		}

		c.Next()

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}

// routeIDs extracts vehicle_id and rental_id from the path and query.
func routeIDs(c *gin.Context) map[string]string {
	ids := make(map[string]string, 2)

	if id := c.Param("id"); id != "" {
		switch path := c.FullPath(); {
		case strings.HasPrefix(path, "/v1/vehicles/"):
			ids["vehicle_id"] = id
		case strings.HasPrefix(path, "/v1/rentals/"):
			ids["rental_id"] = id
		}
	}

	if rentalID := c.Query("rentalId"); rentalID != "" {
		ids["rental_id"] = rentalID
	}
	return ids
}
