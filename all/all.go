// Package all imports every supported stats source.
//
// Import this package for its side effects to register the npm registry
// and the GitHub repository source:
//
//	import (
//		"github.com/git-pkgs/pkggate"
//		_ "github.com/git-pkgs/pkggate/all"
//	)
//
//	// Now the sources are available
//	ecosystems := pkggate.SupportedEcosystems()
//	// ["npm"]
package all

import (
	_ "github.com/git-pkgs/pkggate/internal/github"
	_ "github.com/git-pkgs/pkggate/internal/npm"
)
