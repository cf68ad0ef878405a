package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const userIDContextKey = "loyalty_user_id"

type httpHandler struct {
	service *loyalty.Service
	logger  *zap.Logger
	cfg     Config
	nowFn   func() int64
}

func (handler *httpHandler) requireMember(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	userID, err := loyalty.NewUserID(claims.GetUserID())
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "session without user"))
		return
	}
	ctx.Set(userIDContextKey, userID)
	ctx.Next()
}

func (handler *httpHandler) requireRole(roles ...string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := getClaims(ctx)
		if claims != nil {
			for _, granted := range claims.GetUserRoles() {
				for _, role := range roles {
					if granted == role {
						ctx.Next()
						return
					}
				}
			}
		}
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "role required"))
	}
}

func (handler *httpHandler) handleRegister(ctx *gin.Context) {
	userID := currentUserID(ctx)
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	account, err := handler.service.RegisterAccount(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "register account failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": accountPayload{UserID: account.UserID.String(), Points: account.Points.Int64()}})
}

func (handler *httpHandler) handleAccount(ctx *gin.Context) {
	userID := currentUserID(ctx)
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	summary, err := handler.service.PointsSummary(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, "points summary failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": accountPayload{
		UserID:            userID.String(),
		Points:            summary.Points.Int64(),
		ExpiringPoints:    summary.ExpiringPoints.Int64(),
		NextExpiryUnixUTC: summary.NextExpiryUnixUTC,
	}})
}

func (handler *httpHandler) handleEntries(ctx *gin.Context) {
	userID := currentUserID(ctx)
	before, err := parseOptionalInt(ctx.Query("before"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_query", "before must be unix seconds"))
		return
	}
	limit, err := parseOptionalInt(ctx.Query("limit"))
	if err != nil || limit < 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_query", "limit must be a positive number"))
		return
	}
	if limit == 0 {
		limit = defaultEntriesLimit
	}
	if limit > maxEntriesLimit {
		limit = maxEntriesLimit
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	cursor := loyalty.EntryCursor{BeforeUnixUTC: before, BeforeEntryID: strings.TrimSpace(ctx.Query("before_id"))}
	entries, err := handler.service.ListEntries(requestCtx, userID, cursor, int(limit))
	if err != nil {
		handler.respondError(ctx, "list entries failed", err)
		return
	}
	payload := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		details, err := loyalty.MarshalEntryDetails(entry.Details())
		if err != nil {
			handler.respondError(ctx, "entry details encode failed", err)
			return
		}
		payload = append(payload, entryPayload{
			EntryID:        entry.EntryID().String(),
			Type:           entry.Type().String(),
			PointsDelta:    entry.PointsDelta().Int64(),
			CorrelationID:  entry.CorrelationID(),
			Details:        json.RawMessage(details),
			CreatedUnixUTC: entry.CreatedUnixUTC(),
		})
	}
	response := gin.H{"entries": payload}
	if len(entries) > 0 {
		next := loyalty.NextEntryCursor(entries[len(entries)-1])
		response["next"] = entryCursorPayload{Before: next.BeforeUnixUTC, BeforeID: next.BeforeEntryID}
	}
	ctx.JSON(http.StatusOK, response)
}

func (handler *httpHandler) handleRewards(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	rewards, err := handler.service.Rewards(requestCtx)
	if err != nil {
		handler.respondError(ctx, "list rewards failed", err)
		return
	}
	payload := make([]rewardPayload, 0, len(rewards))
	for _, reward := range rewards {
		payload = append(payload, rewardPayload{
			RewardID:    reward.RewardID.String(),
			PointsCost:  reward.PointsCost.Int64(),
			Category:    reward.Category.String(),
			Name:        localizedPayload(reward.Name),
			Description: localizedPayload(reward.Description),
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"rewards": payload})
}

func (handler *httpHandler) handleRedeemCode(ctx *gin.Context) {
	var request redeemCodeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.RedeemDeliveryCode(requestCtx, request.Code, currentUserID(ctx), ctx.ClientIP())
	if err != nil {
		handler.respondError(ctx, "redeem delivery code failed", err)
		return
	}
	response := codeResultPayload{
		Success:     result.Success,
		Outcome:     result.Outcome.String(),
		Message:     result.Message,
		RateLimited: result.RateLimited,
	}
	if result.Success {
		pointsAdded := result.PointsAdded.Int64()
		currentPoints := result.CurrentPoints.Int64()
		response.PointsAdded = &pointsAdded
		response.CurrentPoints = &currentPoints
	}
	ctx.JSON(http.StatusOK, response)
}

func (handler *httpHandler) handleCheckIn(ctx *gin.Context) {
	var request checkInRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	latitude, longitude := math.NaN(), math.NaN()
	if request.Latitude != nil && request.Longitude != nil {
		latitude, longitude = *request.Latitude, *request.Longitude
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.CheckInByQR(requestCtx, request.QRCode, latitude, longitude, currentUserID(ctx))
	if err != nil {
		handler.respondError(ctx, "check in failed", err)
		return
	}
	response := checkInResultPayload{
		Success: result.Success,
		Outcome: result.Outcome.String(),
		Message: result.Message,
	}
	if result.Outcome == loyalty.OutcomeTooFar || result.Success {
		distance := math.Round(result.DistanceMeters)
		response.DistanceMeters = &distance
	}
	if result.Success {
		currentPoints := result.CurrentPoints.Int64()
		response.CurrentPoints = &currentPoints
	}
	ctx.JSON(http.StatusOK, response)
}

func (handler *httpHandler) handleRedeemReward(ctx *gin.Context) {
	rewardID, err := loyalty.NewRewardID(ctx.Param("rewardID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_reward", "reward id is required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	redemption, err := handler.service.RedeemReward(requestCtx, currentUserID(ctx), rewardID)
	if err != nil {
		handler.respondError(ctx, "redeem reward failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"redemption": handler.redemptionPayload(redemption)})
}

func (handler *httpHandler) handleActiveRedemptions(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	redemptions, err := handler.service.ActiveRedemptions(requestCtx, currentUserID(ctx))
	if err != nil {
		handler.respondError(ctx, "active redemptions failed", err)
		return
	}
	payload := make([]redemptionPayload, 0, len(redemptions))
	for _, redemption := range redemptions {
		payload = append(payload, handler.redemptionPayload(redemption))
	}
	ctx.JSON(http.StatusOK, gin.H{"redemptions": payload})
}

func (handler *httpHandler) handleUseRedemption(ctx *gin.Context) {
	redemptionID, err := loyalty.NewRedemptionID(ctx.Param("redemptionID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_redemption", "redemption id is required"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.service.MarkRedemptionUsed(requestCtx, redemptionID); err != nil {
		handler.respondError(ctx, "mark redemption used failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "used"})
}

func (handler *httpHandler) handleGenerateCodes(ctx *gin.Context) {
	var request generateCodesRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	codes, err := handler.service.GenerateCodes(requestCtx, loyalty.CodeBatchRequest{
		Count:           request.Count,
		Prefix:          request.Prefix,
		PointsAwarded:   request.PointsAwarded,
		ExpiryDays:      request.ExpiryDays,
		OrderType:       request.OrderType,
		DeliveryPartner: request.DeliveryPartner,
	})
	if err != nil {
		handler.respondError(ctx, "generate codes failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"codes": codes})
}

func (handler *httpHandler) handleAdjustPoints(ctx *gin.Context) {
	var request adjustPointsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := loyalty.NewUserID(request.UserID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_user", "user_id is required"))
		return
	}
	delta, err := loyalty.NewPointsDelta(request.PointsDelta)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_points", "points_delta must not be zero"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	balance, err := handler.service.AdjustPoints(requestCtx, currentUserID(ctx), userID, delta, request.Note)
	if err != nil {
		handler.respondError(ctx, "adjust points failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": accountPayload{UserID: userID.String(), Points: balance.Int64()}})
}

func (handler *httpHandler) redemptionPayload(redemption loyalty.Redemption) redemptionPayload {
	nowUnixUTC := handler.nowFn()
	countdown, _ := loyalty.Countdown(redemption, nowUnixUTC)
	return redemptionPayload{
		RedemptionID:     redemption.RedemptionID.String(),
		RewardID:         redemption.RewardID.String(),
		Name:             localizedPayload(redemption.RewardName),
		Category:         redemption.Category.String(),
		PointsCost:       redemption.PointsCost.Int64(),
		Code:             redemption.Code,
		State:            loyalty.RedemptionStateAt(redemption, nowUnixUTC).String(),
		Countdown:        countdown,
		ExpiresAtUnixUTC: redemption.ExpiresAtUnixUTC,
	}
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) respondError(ctx *gin.Context, message string, err error) {
	status, code, publicMessage := classifyError(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error(message, zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, publicMessage))
}

func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, loyalty.ErrUnknownUser):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, loyalty.ErrUnknownReward):
		return http.StatusNotFound, "reward_not_found", "reward not found"
	case errors.Is(err, loyalty.ErrUnknownRedemption):
		return http.StatusNotFound, "redemption_not_found", "redemption not found"
	case errors.Is(err, loyalty.ErrRewardInactive):
		return http.StatusConflict, "reward_inactive", "reward is not available"
	case errors.Is(err, loyalty.ErrInsufficientPoints):
		return http.StatusConflict, "insufficient_points", "not enough points"
	case errors.Is(err, loyalty.ErrRedemptionClosed):
		return http.StatusConflict, "redemption_closed", "already used or expired"
	case errors.Is(err, loyalty.ErrInvalidCodeBatch):
		return http.StatusBadRequest, "invalid_code_batch", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

func currentUserID(ctx *gin.Context) loyalty.UserID {
	value, _ := ctx.Get(userIDContextKey)
	userID, _ := value.(loyalty.UserID)
	return userID
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func parseOptionalInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func localizedPayload(text loyalty.LocalizedText) localizedTextPayload {
	return localizedTextPayload{Japanese: text.Japanese, English: text.English}
}

type redeemCodeRequest struct {
	Code string `json:"code"`
}

type checkInRequest struct {
	QRCode    string   `json:"qr_code"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type generateCodesRequest struct {
	Count           int    `json:"count"`
	Prefix          string `json:"prefix"`
	PointsAwarded   int64  `json:"points_awarded"`
	ExpiryDays      int    `json:"expiry_days"`
	OrderType       string `json:"order_type"`
	DeliveryPartner string `json:"delivery_partner"`
}

type adjustPointsRequest struct {
	UserID      string `json:"user_id"`
	PointsDelta int64  `json:"points_delta"`
	Note        string `json:"note"`
}

type accountPayload struct {
	UserID            string `json:"user_id"`
	Points            int64  `json:"points"`
	ExpiringPoints    int64  `json:"expiring_points"`
	NextExpiryUnixUTC int64  `json:"next_expiry_unix_utc,omitempty"`
}

type entryPayload struct {
	EntryID        string          `json:"entry_id"`
	Type           string          `json:"type"`
	PointsDelta    int64           `json:"points_delta"`
	CorrelationID  string          `json:"correlation_id"`
	Details        json.RawMessage `json:"details"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

type entryCursorPayload struct {
	Before   int64  `json:"before"`
	BeforeID string `json:"before_id"`
}

type localizedTextPayload struct {
	Japanese string `json:"ja"`
	English  string `json:"en"`
}

type rewardPayload struct {
	RewardID    string               `json:"reward_id"`
	PointsCost  int64                `json:"points_cost"`
	Category    string               `json:"category"`
	Name        localizedTextPayload `json:"name"`
	Description localizedTextPayload `json:"description"`
}

type codeResultPayload struct {
	Success       bool   `json:"success"`
	Outcome       string `json:"outcome"`
	Message       string `json:"message"`
	PointsAdded   *int64 `json:"points_added,omitempty"`
	CurrentPoints *int64 `json:"current_points,omitempty"`
	RateLimited   bool   `json:"rate_limited"`
}

type checkInResultPayload struct {
	Success        bool     `json:"success"`
	Outcome        string   `json:"outcome"`
	Message        string   `json:"message"`
	DistanceMeters *float64 `json:"distance,omitempty"`
	CurrentPoints  *int64   `json:"current_points,omitempty"`
}

type redemptionPayload struct {
	RedemptionID     string               `json:"redemption_id"`
	RewardID         string               `json:"reward_id"`
	Name             localizedTextPayload `json:"name"`
	Category         string               `json:"category"`
	PointsCost       int64                `json:"points_cost"`
	Code             string               `json:"code"`
	State            string               `json:"state"`
	Countdown        string               `json:"countdown,omitempty"`
	ExpiresAtUnixUTC int64                `json:"expires_at"`
}
