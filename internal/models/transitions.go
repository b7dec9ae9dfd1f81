package models

// transitionMap lists, per target status, the statuses a ticket may move
// from. WAITING appears as a target because call-next force-resets a
// conflicting CALLING ticket back into the queue.
var transitionMap = map[string][]string{
	StatusCalling:   {StatusWaiting},
	StatusServing:   {StatusCalling},
	StatusCompleted: {StatusCalling, StatusServing},
	StatusNoShow:    {StatusCalling, StatusServing},
	StatusWaiting:   {StatusCalling},
}

func ValidTransition(from, to string) bool {
	allowed, ok := transitionMap[to]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

// TerminalStatus reports whether a ticket in this status is done with its
// teller; these transitions release the teller back to ONLINE.
func TerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusNoShow
}
