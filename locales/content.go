// Package locales provides embedded localization resource files for kmt.
// It contains YAML catalogs (en, pt-BR) used to render human-readable
// operation outcomes and session state transitions.
package locales

import "embed"

//go:embed en.yaml
//go:embed pt-BR.yaml

// Content is an embedded file system containing the localized catalogs.
var Content embed.FS
