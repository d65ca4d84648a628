package z2mprovision

import _ "embed"

//go:embed README.md
var embeddedReadme []byte

// DocAsset represents an embedded documentation file that can be
// materialized during setup.
type DocAsset struct {
	Name string
	Data []byte
}

// InstallableDocs returns the list of documentation files embedded in the
// binary that should be written to the installation root.
func InstallableDocs() []DocAsset {
	return []DocAsset{
		{Name: "README.md", Data: embeddedReadme},
	}
}
