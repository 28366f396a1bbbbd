package services

import (
	"fmt"
	"time"
)

const verificationSubject = "Your Unveil verification code"

const verificationText = `Your Unveil verification code is: %s

The code expires in %d minutes. If you did not request it, ignore this email.
`

const verificationHTML = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background:#f5f5f5; padding:24px;">
  <div style="max-width:480px; margin:0 auto; background:#ffffff; border-radius:8px; padding:24px;">
    <h2 style="margin-top:0;">Verify your email</h2>
    <p>Use this code to confirm your email address on Unveil:</p>
    <p style="font-size:32px; letter-spacing:8px; font-weight:bold; text-align:center;">%s</p>
    <p>The code expires in <strong>%d minutes</strong>.</p>
    <p style="color:#888; font-size:12px;">If you did not request this code, you can ignore this email.</p>
  </div>
</body>
</html>`

func verificationEmail(code string, expiresIn time.Duration) (subject, text, html string) {
	minutes := int(expiresIn / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return verificationSubject,
		fmt.Sprintf(verificationText, code, minutes),
		fmt.Sprintf(verificationHTML, code, minutes)
}
