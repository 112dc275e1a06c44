// Package translate formats user-visible messages for the isk simulator
// in the language of the host locale.
package translate

import (
	"log"

	"github.com/jeandeaual/go-locale"

	"golang.org/x/text/message"
)

const DEFAULT_LOCALE = "en-US"

var printer *message.Printer

func init() {
	SetLocale()
}

// SetLocale selects the message language from a list of preferred locales.
// With no locales, the host locales are used.
func SetLocale(locales ...string) {
	if len(locales) == 0 {
		host, err := locale.GetLocales()
		if err != nil {
			log.Printf("isk: locale: %v", err)
		}
		locales = host
	}

	if len(locales) == 0 {
		locales = []string{DEFAULT_LOCALE}
	}

	printer = message.NewPrinter(message.MatchLanguage(locales...))
}

// From an en-US Sprintf() format, translate to string.
func From(key message.Reference, args ...any) string {
	return printer.Sprintf(key, args...)
}
