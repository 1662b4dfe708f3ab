package manifest

// PropType is the fixed enumeration of property types a manifest can declare.
type PropType string

const (
	PropString    PropType = "string"
	PropNumber    PropType = "number"
	PropLink      PropType = "link"
	PropText      PropType = "text"
	PropRichText  PropType = "rich_text"
	PropMoney     PropType = "money"
	PropDate      PropType = "date"
	PropTimestamp PropType = "timestamp"
	PropEmail     PropType = "email"
	PropBoolean   PropType = "boolean"
	PropPassword  PropType = "password"
	PropChoice    PropType = "choice"
	PropLocation  PropType = "location"
	PropFile      PropType = "file"
	PropImage     PropType = "image"
)

// AllPropTypes lists every member of the enumeration. The schema builder
// checks its column lookup table is total over this list at boot.
var AllPropTypes = []PropType{
	PropString, PropNumber, PropLink, PropText, PropRichText, PropMoney,
	PropDate, PropTimestamp, PropEmail, PropBoolean, PropPassword,
	PropChoice, PropLocation, PropFile, PropImage,
}

// PropertyManifest describes one property of an entity.
type PropertyManifest struct {
	Name       string   `json:"name"`
	Type       PropType `json:"type"`
	Hidden     bool     `json:"hidden,omitempty"`
	Required   bool     `json:"required,omitempty"`
	Default    any      `json:"default,omitempty"`
	Options    []string `json:"options,omitempty"`    // choice values
	Expression string   `json:"expression,omitempty"` // extra validation expression
}

// IsPassword reports whether the property must never appear in read results.
// Both the password type and a "password" name count, so authenticable base
// columns and manifest-declared secrets get the same treatment.
func (p *PropertyManifest) IsPassword() bool {
	return p.Type == PropPassword || p.Name == "password"
}

// IsNumeric reports whether filter values for this property parse as numbers.
func (p *PropertyManifest) IsNumeric() bool {
	return p.Type == PropNumber || p.Type == PropMoney
}
