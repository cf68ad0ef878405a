package loyalty

// Outcome classifies the result of a code redemption or check-in.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeRateLimited      Outcome = "rate_limited"
	OutcomeInvalidFormat    Outcome = "invalid_format"
	OutcomeInvalidCode      Outcome = "invalid_code"
	OutcomeAlreadyUsed      Outcome = "already_used"
	OutcomeExpired          Outcome = "expired"
	OutcomeUserNotFound     Outcome = "user_not_found"
	OutcomeUnknownLocation  Outcome = "unknown_location"
	OutcomeInvalidLocation  Outcome = "invalid_location"
	OutcomeTooFar           Outcome = "too_far"
	OutcomeAlreadyCheckedIn Outcome = "already_checked_in"
)

var outcomeMessages = map[Outcome]string{
	OutcomeSuccess:          "points added",
	OutcomeRateLimited:      "too many attempts",
	OutcomeInvalidFormat:    "invalid code format",
	OutcomeInvalidCode:      "invalid code",
	OutcomeAlreadyUsed:      "already used",
	OutcomeExpired:          "expired",
	OutcomeUserNotFound:     "user not found",
	OutcomeUnknownLocation:  "unknown location",
	OutcomeInvalidLocation:  "location required",
	OutcomeTooFar:           "too far from the restaurant",
	OutcomeAlreadyCheckedIn: "already checked in today",
}

// String returns the outcome tag.
func (outcome Outcome) String() string {
	return string(outcome)
}

// Message returns the member-facing message of the outcome.
func (outcome Outcome) Message() string {
	return outcomeMessages[outcome]
}

// CodeRedemptionResult is the structured verdict of a delivery code submission.
type CodeRedemptionResult struct {
	Success       bool
	Outcome       Outcome
	Message       string
	PointsAdded   Points
	CurrentPoints Points
	RateLimited   bool
}

// CheckInResult is the structured verdict of a QR check-in.
type CheckInResult struct {
	Success        bool
	Outcome        Outcome
	Message        string
	DistanceMeters float64
	PointsAdded    Points
	CurrentPoints  Points
}

func codeRedemptionFailure(outcome Outcome) CodeRedemptionResult {
	return CodeRedemptionResult{
		Outcome:     outcome,
		Message:     outcome.Message(),
		RateLimited: outcome == OutcomeRateLimited,
	}
}

func checkInFailure(outcome Outcome, distanceMeters float64) CheckInResult {
	return CheckInResult{
		Outcome:        outcome,
		Message:        outcome.Message(),
		DistanceMeters: distanceMeters,
	}
}
