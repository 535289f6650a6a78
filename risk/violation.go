package risk

import "fmt"

type Code uint8

const (
	CodeApproved Code = iota
	CodeInvalid
	CodeOrderSize
	CodeRateLimit
	CodePositionLimit
	CodeExposureLimit
	CodeLossLimit
	CodeCooldown
)

func (c Code) String() string {
	switch c {
	case CodeApproved:
		return "APPROVED"
	case CodeInvalid:
		return "INVALID_ORDER"
	case CodeOrderSize:
		return "ORDER_SIZE"
	case CodeRateLimit:
		return "RATE_LIMIT"
	case CodePositionLimit:
		return "POSITION_LIMIT"
	case CodeExposureLimit:
		return "EXPOSURE_LIMIT"
	case CodeLossLimit:
		return "LOSS_LIMIT"
	case CodeCooldown:
		return "COOLDOWN"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// Violation is a rejected risk check. It is an ordinary value; Error lets
// callers return it through an error path.
type Violation struct {
	Code       Code
	Strategy   string
	Instrument string
	Message    string
	Value      float64
	Limit      float64
}

func (v *Violation) Error() string {
	return fmt.Sprintf("risk %s: %s (value %g, limit %g)", v.Code, v.Message, v.Value, v.Limit)
}
