package signaling

// Terminal cause names as reported by the signaling layer
const (
	CauseNormalClearing = "NORMAL_CLEARING"
	CauseUserBusy       = "USER_BUSY"
	CauseNoAnswer       = "NO_ANSWER"
	CauseCallRejected   = "CALL_REJECTED"
	CauseUnknown        = "UNKNOWN"
)

// q850Causes maps Q.850 hangup cause codes to their names
var q850Causes = map[int]string{
	1:   "UNALLOCATED",
	3:   "NO_ROUTE_DESTINATION",
	16:  CauseNormalClearing,
	17:  CauseUserBusy,
	18:  "NO_USER_RESPONSE",
	19:  CauseNoAnswer,
	20:  "SUBSCRIBER_ABSENT",
	21:  CauseCallRejected,
	26:  "ANSWERED_ELSEWHERE",
	27:  "DESTINATION_OUT_OF_ORDER",
	28:  "INVALID_NUMBER_FORMAT",
	31:  "NORMAL_UNSPECIFIED",
	34:  "NORMAL_CIRCUIT_CONGESTION",
	38:  "NETWORK_OUT_OF_ORDER",
	41:  "NORMAL_TEMPORARY_FAILURE",
	42:  "SWITCH_CONGESTION",
	127: "INTERWORKING",
}

// CauseName returns the name of a Q.850 cause code. Zero means no cause was
// reported and yields an empty string.
func CauseName(code int) string {
	if code == 0 {
		return ""
	}
	if name, ok := q850Causes[code]; ok {
		return name
	}
	return CauseUnknown
}
