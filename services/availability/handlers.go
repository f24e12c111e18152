package main

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
	"github.com/Wollie333/vilo-sub009/shared/middleware"
	"github.com/Wollie333/vilo-sub009/shared/pricing"
	"github.com/Wollie333/vilo-sub009/shared/utils"
)

// BlockedDatesResponse lists the unbookable dates of a room
type BlockedDatesResponse struct {
	RoomID uuid.UUID `json:"room_id"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Dates  []string  `json:"dates"`
}

func registerRoutes(rooms *gin.RouterGroup, calc *pricing.Calculator) {
	rooms.GET("/:room_id/quote", handleQuote(calc))
	rooms.GET("/:room_id/availability", handleAvailability(calc))
	rooms.GET("/:room_id/blocked-dates", handleBlockedDates(calc))
}

// handleQuote prices every night of a stay
func handleQuote(calc *pricing.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, roomID, ok := scope(c)
		if !ok {
			return
		}
		checkIn, checkOut, err := dateRange(c, "check_in", "check_out")
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		quote, err := calc.Quote(c.Request.Context(), tenantID, roomID, checkIn, checkOut)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Quote calculated", quote)
	}
}

// handleAvailability prices the stay and checks inventory and stay rules
func handleAvailability(calc *pricing.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, roomID, ok := scope(c)
		if !ok {
			return
		}
		checkIn, checkOut, err := dateRange(c, "check_in", "check_out")
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		guests := 0
		if raw := c.Query("guests"); raw != "" {
			guests, err = strconv.Atoi(raw)
			if err != nil || guests < 1 {
				utils.BadRequestResponse(c, "guests must be a positive integer")
				return
			}
		}

		availability, err := calc.Check(c.Request.Context(), tenantID, roomID, checkIn, checkOut, guests)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Availability checked", availability)
	}
}

// handleBlockedDates returns the calendar dates that cannot take another booking
func handleBlockedDates(calc *pricing.Calculator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, roomID, ok := scope(c)
		if !ok {
			return
		}
		from, to, err := dateRange(c, "from", "to")
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		dates, err := calc.BlockedDates(c.Request.Context(), tenantID, roomID, from, to)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		utils.OKResponse(c, "Blocked dates retrieved", BlockedDatesResponse{
			RoomID: roomID,
			From:   utils.FormatDate(from),
			To:     utils.FormatDate(to),
			Dates:  dates,
		})
	}
}

// scope reads the authenticated tenant and the room path parameter
func scope(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "Tenant information not found")
		return uuid.Nil, uuid.Nil, false
	}
	roomID, err := uuid.Parse(c.Param("room_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid room ID")
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, roomID, true
}

func dateRange(c *gin.Context, startKey, endKey string) (time.Time, time.Time, error) {
	start, err := requiredDate(c, startKey)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := requiredDate(c, endKey)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func requiredDate(c *gin.Context, key string) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, apperr.Validation(key, "is required")
	}
	d, err := utils.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.Validation(key, "%v", err)
	}
	return d, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// handleHealth reports healthy only while the database answers
func handleHealth(db pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			utils.ServiceUnavailableResponse(c, "Database unavailable")
			return
		}
		utils.OKResponse(c, "Availability service is healthy", nil)
	}
}
