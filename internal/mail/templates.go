package mail

import (
	"fmt"
	"time"
)

func passwordResetOTPMessage(to, code string, expiresIn time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Your password reset code",
		Body: fmt.Sprintf(
			"Use the code below to reset your password.\n\n    %s\n\nThe code expires in %s. If you did not ask for it you can ignore this email.\n",
			code, formatDuration(expiresIn)),
	}
}

func passwordResetLinkMessage(to, link string, expiresIn time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Body: fmt.Sprintf(
			"Open the link below to choose a new password.\n\n%s\n\nThe link expires in %s. If you did not ask for it you can ignore this email.\n",
			link, formatDuration(expiresIn)),
	}
}

// formatDuration renders an expiry as "10 minutes", "1 hour" or "2 days"
func formatDuration(d time.Duration) string {
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	switch {
	case d >= 24*time.Hour:
		return plural(int(d.Hours()/24), "day")
	case d >= time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Minutes()), "minute")
	}
}
