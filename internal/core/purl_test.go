package core

import (
	"testing"
)

func TestParsePURL(t *testing.T) {
	tests := []struct {
		input    string
		wantType string
		wantNS   string
		wantName string
		wantVer  string
		wantFull string
		wantErr  bool
	}{
		{"pkg:npm/lodash", "npm", "", "lodash", "", "lodash", false},
		{"pkg:npm/lodash@4.17.21", "npm", "", "lodash", "4.17.21", "lodash", false},

		// npm scoped packages (packageurl-go keeps @ in namespace)
		{"pkg:npm/%40babel/core", "npm", "@babel", "core", "", "@babel/core", false},
		{"pkg:npm/%40babel/core@7.24.0", "npm", "@babel", "core", "7.24.0", "@babel/core", false},

		{"pkg:maven/org.apache.commons/commons-lang3", "maven", "org.apache.commons", "commons-lang3", "", "org.apache.commons:commons-lang3", false},

		// missing pkg: prefix
		{"npm/lodash", "", "", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParsePURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			if p.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", p.Type, tt.wantType)
			}
			if p.Namespace != tt.wantNS {
				t.Errorf("Namespace = %q, want %q", p.Namespace, tt.wantNS)
			}
			if p.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", p.Name, tt.wantName)
			}
			if p.Version != tt.wantVer {
				t.Errorf("Version = %q, want %q", p.Version, tt.wantVer)
			}
			if got := p.FullName(); got != tt.wantFull {
				t.Errorf("FullName() = %q, want %q", got, tt.wantFull)
			}
		})
	}
}

func TestParsePackageRef(t *testing.T) {
	tests := []struct {
		input   string
		want    PackageRef
		wantErr bool
	}{
		{"axios", PackageRef{Ecosystem: "npm", Name: "axios"}, false},
		{"  left-pad ", PackageRef{Ecosystem: "npm", Name: "left-pad"}, false},
		{"@babel/core", PackageRef{Ecosystem: "npm", Name: "@babel/core"}, false},
		{"pkg:npm/react@18.3.1", PackageRef{Ecosystem: "npm", Name: "react"}, false},
		{"pkg:npm/%40babel/core", PackageRef{Ecosystem: "npm", Name: "@babel/core"}, false},
		{"pkg:pypi/requests", PackageRef{Ecosystem: "pypi", Name: "requests"}, false},
		{"", PackageRef{}, true},
		{"pkg:", PackageRef{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePackageRef(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePackageRef(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePackageRef(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}
