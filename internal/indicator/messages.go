package indicator

import (
	"os"
	"strings"
)

type locale string

const localeEnglish locale = "en"

// Messages are the status lines shown while the voice loop runs.
type Messages struct {
	Waiting    string
	Listening  string
	Processing string
}

// MessagesFromEnv resolves status lines for the current LANG.
func MessagesFromEnv() Messages {
	return messagesFor(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func messagesFor(tag locale) Messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return Messages{
			Waiting:    "Waiting for your command…",
			Listening:  "Listening…",
			Processing: "Processing…",
		}
	}
}
