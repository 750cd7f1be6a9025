package ntag424

// AuthSlotResult holds the result of an authentication attempt for diagnostics.
type AuthSlotResult struct {
	Slot    byte   // Key slot number
	Success bool   // True if authentication succeeded
	Step    string // Authentication step where failure occurred ("step1" or "step2")
	SW      uint16 // Status word from failed step
	RespLen int    // Response length from failed step
	Err     error  // Underlying error
}

// DiagnoseAuthSlots attempts authentication with key on each of slots.
// The application is reselected before every attempt because a failed
// handshake leaves the tag in an unauthenticated state.
func DiagnoseAuthSlots(card Card, key []byte, slots []byte) []AuthSlotResult {
	results := make([]AuthSlotResult, 0, len(slots))
	for _, slot := range slots {
		result := AuthSlotResult{Slot: slot}
		s, err := NewSession(key)
		if err == nil {
			err = SelectNDEFApp(card)
		}
		if err == nil {
			_, err = AuthenticateEV2First(card, s, slot)
		}
		result.Success = err == nil
		result.Err = err
		if step, sw, respLen, ok := ClassifyAuthError(err); ok {
			result.Step = step
			result.SW = sw
			result.RespLen = respLen
		}
		results = append(results, result)
	}
	return results
}
