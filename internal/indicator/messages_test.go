package indicator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLocaleDefaultsToEnglish(t *testing.T) {
	require.Equal(t, localeEnglish, resolveLocale("en_US.UTF-8"))
	require.Equal(t, localeEnglish, resolveLocale("fr_FR.UTF-8"))
}

func TestMessagesEnglish(t *testing.T) {
	msg := messagesFor(localeEnglish)
	require.Equal(t, "Waiting for your command…", msg.Waiting)
	require.Equal(t, "Listening…", msg.Listening)
	require.Equal(t, "Processing…", msg.Processing)
}

func TestMessagesFromEnv(t *testing.T) {
	t.Setenv("LANG", "de_DE.UTF-8")
	require.Equal(t, messagesFor(localeEnglish), MessagesFromEnv())
}
