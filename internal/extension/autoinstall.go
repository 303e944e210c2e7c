package extension

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extmodel"
)

// AutoInstaller runs the first-run bootstrap described in §4.12: it fetches
// the registry, installs every defaultEnabled entry, and installs whichever
// language pack matches the host's locale. Grounded on the teacher's
// registry-driven install flow, generalized from a single catalog fetch into
// the install+enable tail Manager.Install already performs.
type AutoInstaller struct {
	manager *Manager
}

// NewAutoInstaller builds an AutoInstaller bound to manager.
func NewAutoInstaller(manager *Manager) *AutoInstaller {
	return &AutoInstaller{manager: manager}
}

// Run executes the first-run bootstrap. hostLocale is the host's raw
// language setting (e.g. "ja-JP"); an empty value defaults to "en". If the
// registry cannot be fetched, that is logged and nothing is installed. Each
// install step is independently fault-isolated: a failure installing one
// entry is logged and does not abort the remaining installs.
func (a *AutoInstaller) Run(hostLocale string) {
	reg := a.manager.cfg.Registry.FetchRegistry(false)
	if reg == nil {
		log.Warn("extension: autoinstall: registry unavailable, skipping first-run bootstrap")
		return
	}

	locale := primarySubtag(hostLocale)

	for _, entry := range reg.Extensions {
		if !entry.DefaultEnabled {
			continue
		}
		a.installSafely(entry.ManifestURL)
	}

	if langEntry, ok := findLanguagePackEntry(reg.Extensions, locale); ok {
		a.installSafely(langEntry.ManifestURL)
	}
}

func (a *AutoInstaller) installSafely(manifestURL string) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("extension: autoinstall: install %s panicked: %v", manifestURL, r)
		}
	}()
	if _, err := a.manager.Install(manifestURL); err != nil {
		log.Warnf("extension: autoinstall: install %s failed: %v", manifestURL, err)
	}
}

// primarySubtag extracts the primary language subtag from a BCP-47-ish tag
// ("ja-JP" -> "ja"), defaulting to "en" when locale is empty.
func primarySubtag(locale string) string {
	if locale == "" {
		return "en"
	}
	if idx := strings.IndexAny(locale, "-_"); idx >= 0 {
		locale = locale[:idx]
	}
	return strings.ToLower(locale)
}

func findLanguagePackEntry(entries []extmodel.RegistryEntry, locale string) (extmodel.RegistryEntry, bool) {
	needle := fmt.Sprintf("lang-packs/%s/", locale)
	for _, e := range entries {
		if strings.Contains(e.ManifestURL, needle) {
			return e, true
		}
	}
	return extmodel.RegistryEntry{}, false
}
