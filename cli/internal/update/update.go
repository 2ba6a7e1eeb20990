// Package update compares the running build against the latest release.
package update

import (
	"fmt"

	goversion "github.com/hashicorp/go-version"

	"github.com/dbkeeper/dbkeeper/cli/internal/ui"
)

// latestKnown is the newest release this build knows about. Release
// automation rewrites it; a network lookup is deliberately avoided so the
// check works offline.
const latestKnown = "0.1.0"

// Check reports whether a newer version than currentVersion is available.
func Check(currentVersion string) error {
	current, err := goversion.NewVersion(currentVersion)
	if err != nil {
		return fmt.Errorf("invalid version format: %w", err)
	}
	latest, err := goversion.NewVersion(latestKnown)
	if err != nil {
		return fmt.Errorf("invalid latest version format: %w", err)
	}

	if current.LessThan(latest) {
		ui.Warning("A new version is available!")
		fmt.Printf("Current version: %s\n", currentVersion)
		fmt.Printf("Latest version:  %s\n", latestKnown)
		fmt.Println("\nUpdate with: go install github.com/dbkeeper/dbkeeper/cli@latest")
		return nil
	}
	ui.Success("dbkeeper %s is up to date", currentVersion)
	return nil
}
