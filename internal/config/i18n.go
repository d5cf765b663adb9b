package config

import (
	"github.com/OliveiraNt/kmt/locales"
	"github.com/invopop/ctxi18n"
)

// InitI18n loads the embedded catalogs with "en" as the fallback locale.
func InitI18n() {
	err := ctxi18n.LoadWithDefault(locales.Content, "en")
	if err != nil {
		panic(err)
	}
}
