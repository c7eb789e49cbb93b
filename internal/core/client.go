package core

import (
	"github.com/git-pkgs/pkggate/client"
)

// Type aliases so source implementations only import core.
type (
	Client        = client.Client
	Option        = client.Option
	URLBuilder    = client.URLBuilder
	BaseURLs      = client.BaseURLs
	HTTPError     = client.HTTPError
	NotFoundError = client.NotFoundError
)

// Function aliases.
var (
	DefaultClient  = client.DefaultClient
	NewClient      = client.NewClient
	WithTimeout    = client.WithTimeout
	WithMaxRetries = client.WithMaxRetries
	BuildURLs      = client.BuildURLs
)
