package plugin

// Manifest represents a plugin.yaml file. Plugins that ship without framework
// code are described only by their manifest.
type Manifest struct {
	Name                     string `yaml:"name"                                 json:"name"`
	Version                  string `yaml:"version"                              json:"version"`
	Description              string `yaml:"description,omitempty"                json:"description,omitempty"`
	Author                   string `yaml:"author,omitempty"                     json:"author,omitempty"`
	RequiredFrameworkVersion string `yaml:"required_framework_version,omitempty" json:"required_framework_version,omitempty"`
}

// Descriptor converts the manifest into a plugin descriptor owned by module.
func (m Manifest) Descriptor(module string) Descriptor {
	return Descriptor{
		Name:                     m.Name,
		Version:                  m.Version,
		Description:              m.Description,
		Author:                   m.Author,
		RequiredFrameworkVersion: m.RequiredFrameworkVersion,
		Module:                   module,
	}
}
