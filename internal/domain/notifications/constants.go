package notifications

const (
	TypeWelcome = "welcome"

	welcomeSubject = "Your payroll account"
)
