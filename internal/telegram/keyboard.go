package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// Command names understood by the bot
const (
	CommandStart   = "start"
	CommandSetName = "setname"
	CommandZip     = "zip"
	CommandHelp    = "help"
)

// BotCommands is the menu published with setMyCommands
func BotCommands() []tgbotapi.BotCommand {
	return []tgbotapi.BotCommand{
		{Command: CommandStart, Description: "Start a new file collection"},
		{Command: CommandSetName, Description: "Name the ZIP file"},
		{Command: CommandZip, Description: "Create and send the ZIP file"},
		{Command: CommandHelp, Description: "Show how to use the bot"},
	}
}

// MainKeyboard is the reply keyboard shown when a session starts
func MainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/"+CommandStart),
			tgbotapi.NewKeyboardButton("/"+CommandSetName),
			tgbotapi.NewKeyboardButton("/"+CommandZip),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}
