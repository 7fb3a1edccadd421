package model

import "time"

// MailSettings are the SMTP settings used to send update notifications.
type MailSettings struct {
	Server    string
	Port      int
	Username  string
	Password  string
	Recipient string
}

// Complete returns true when all the settings required to send mails are set.
func (m MailSettings) Complete() bool {
	return m.Server != "" && m.Port > 0 && m.Username != "" && m.Password != "" && m.Recipient != ""
}

// Settings are the user settings of the application.
type Settings struct {
	Executable     string
	CommandTimeout time.Duration
	UpdateInterval time.Duration
	Mail           MailSettings
}
