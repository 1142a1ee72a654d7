package model

// ExceptionMessage is the operator-facing text for a punch exception code,
// in both kiosk languages.
type ExceptionMessage struct {
	EN string
	ES string
}

// exceptionMessages maps remote punch exception codes to display text.
// Unknown codes fall back to the generic not-authorized message.
var exceptionMessages = map[int]ExceptionMessage{
	1: {"Shift not yet started. No punch recorded.", "Turno no ha iniciado. No registro realizado."},
	2: {"Not Authorized. No punch recorded.", "No Authorizado. No registro realizado."},
	3: {"Shift has finished. No punch recorded.", "Turno ha finalizado. No registro realizado."},
}

var exceptionDefault = ExceptionMessage{
	EN: "Not Authorized. No punch recorded.",
	ES: "No Authorizado. No registro realizado.",
}

// MessageForException resolves the display text for a punch exception code.
func MessageForException(code int) ExceptionMessage {
	if m, ok := exceptionMessages[code]; ok {
		return m
	}
	return exceptionDefault
}

// systemErrors maps remote system error codes (negative) to fixed messages.
var systemErrors = map[int]string{
	-1: "Connection not secure",
	-2: "Input parameters not found",
	-3: "Client not authorized",
	-4: "Invalid input parameter format",
	-5: "Too few input parameters",
	-6: "Invalid date",
}

// MessageForSystemError resolves the message for a remote system error code.
// The second result reports whether the code is a known system error.
func MessageForSystemError(code int) (string, bool) {
	m, ok := systemErrors[code]
	return m, ok
}
