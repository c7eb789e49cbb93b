package core

import (
	"fmt"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// DefaultEcosystem is assumed for bare package names.
const DefaultEcosystem = "npm"

// PURL wraps packageurl.PackageURL with registry-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// FullName returns the package name in the format expected by the registry.
// For npm: "@babel/core".
func (p PURL) FullName() string {
	if p.Namespace == "" {
		return p.Name
	}

	switch p.Type {
	case "maven":
		return p.Namespace + ":" + p.Name
	default:
		// packageurl-go keeps @ in npm namespaces, so "@babel" + "/" + "core"
		return p.Namespace + "/" + p.Name
	}
}

// ParsePURL parses a Package URL string into its components.
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// PackageRef identifies a package to validate.
type PackageRef struct {
	Ecosystem string
	Name      string
}

// ParsePackageRef accepts either a bare package name, which is taken to
// belong to DefaultEcosystem, or a PURL such as "pkg:npm/%40babel/core".
// Any version in the PURL is ignored.
func ParsePackageRef(arg string) (PackageRef, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return PackageRef{}, fmt.Errorf("empty package name")
	}

	if !strings.HasPrefix(arg, "pkg:") {
		return PackageRef{Ecosystem: DefaultEcosystem, Name: arg}, nil
	}

	p, err := ParsePURL(arg)
	if err != nil {
		return PackageRef{}, fmt.Errorf("parsing %q: %w", arg, err)
	}
	return PackageRef{Ecosystem: p.Type, Name: p.FullName()}, nil
}
