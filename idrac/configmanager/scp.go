package configmanager

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/steelcutops/idracuser/idrac/usermanager"
)

// IDRACComponent is the FQDD of the iDRAC component in a Server
// Configuration Profile.
const IDRACComponent = "iDRAC.Embedded.1"

const (
	attrUserName  = "UserName"
	attrPassword  = "Password"
	attrPrivilege = "Privilege"
	attrEnable    = "Enable"

	valueEnabled  = "Enabled"
	valueDisabled = "Disabled"
)

// SystemConfiguration is a Server Configuration Profile (SCP) document as
// exported and imported by racadm with -t xml.
type SystemConfiguration struct {
	XMLName    xml.Name    `xml:"SystemConfiguration"`
	Model      string      `xml:"Model,attr,omitempty"`
	ServiceTag string      `xml:"ServiceTag,attr,omitempty"`
	TimeStamp  string      `xml:"TimeStamp,attr,omitempty"`
	Components []Component `xml:"Component"`
}

type Component struct {
	FQDD       string      `xml:"FQDD,attr"`
	Attributes []Attribute `xml:"Attribute"`
}

type Attribute struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:",chardata"`
}

// ParseSystemConfiguration decodes an exported profile. Attributes the
// controller exports as comments, such as passwords, are not visible.
func ParseSystemConfiguration(data []byte) (*SystemConfiguration, error) {
	var sc SystemConfiguration
	if err := xml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing system configuration profile: %w", err)
	}
	return &sc, nil
}

// Component returns the component with the given FQDD, or nil.
func (sc *SystemConfiguration) Component(fqdd string) *Component {
	for i := range sc.Components {
		if sc.Components[i].FQDD == fqdd {
			return &sc.Components[i]
		}
	}
	return nil
}

// Users returns one entry per iDRAC user slot, FirstUserSlot through
// LastUserSlot, in slot order. Slots missing from the profile are returned
// empty.
func (sc *SystemConfiguration) Users() ([]usermanager.User, error) {
	users := make([]usermanager.User, 0, usermanager.LastUserSlot-usermanager.FirstUserSlot+1)
	for i := usermanager.FirstUserSlot; i <= usermanager.LastUserSlot; i++ {
		users = append(users, usermanager.User{Index: i})
	}

	comp := sc.Component(IDRACComponent)
	if comp == nil {
		return users, nil
	}

	for _, attr := range comp.Attributes {
		index, field, ok := splitUserAttribute(attr.Name)
		if !ok || index < usermanager.FirstUserSlot || index > usermanager.LastUserSlot {
			continue
		}
		u := &users[index-usermanager.FirstUserSlot]
		value := strings.TrimSpace(attr.Value)

		switch field {
		case attrUserName:
			u.Username = value
		case attrPrivilege:
			p, err := usermanager.ParsePrivilegeValue(value)
			if err != nil {
				return nil, fmt.Errorf("Users.%d: %w", index, err)
			}
			u.Privilege = p
		case attrEnable:
			u.Enabled = value == valueEnabled
		}
	}

	return users, nil
}

// FindFirst returns the first account whose name matches username.
func (sc *SystemConfiguration) FindFirst(username string) (usermanager.User, bool, error) {
	users, err := sc.Users()
	if err != nil {
		return usermanager.User{}, false, err
	}
	for _, u := range users {
		if u.Matches(username) {
			return u, true, nil
		}
	}
	return usermanager.User{}, false, nil
}

// splitUserAttribute splits "Users.3#UserName" into 3 and "UserName".
func splitUserAttribute(name string) (int, string, bool) {
	group, field, ok := strings.Cut(name, "#")
	if !ok {
		return 0, "", false
	}
	prefix, idx, ok := strings.Cut(group, ".")
	if !ok || prefix != "Users" {
		return 0, "", false
	}
	index, err := strconv.Atoi(idx)
	if err != nil {
		return 0, "", false
	}
	return index, field, true
}

func userAttribute(index int, field, value string) Attribute {
	return Attribute{Name: fmt.Sprintf("Users.%d#%s", index, field), Value: value}
}

// RenderChangeSet encodes changes as an import profile holding only the
// attributes that change. Within a slot the name is written before the
// account is enabled, and the account is disabled before its name is
// cleared.
func RenderChangeSet(changes usermanager.ChangeSet) ([]byte, error) {
	comp := Component{FQDD: IDRACComponent}

	for _, p := range changes.Patches {
		if p.Remove {
			comp.Attributes = append(comp.Attributes,
				userAttribute(p.Index, attrEnable, valueDisabled),
				userAttribute(p.Index, attrPrivilege, usermanager.NoAccess.Value()),
				userAttribute(p.Index, attrUserName, ""),
			)
			continue
		}
		if p.Username != nil {
			comp.Attributes = append(comp.Attributes, userAttribute(p.Index, attrUserName, *p.Username))
		}
		if p.Password != nil {
			comp.Attributes = append(comp.Attributes, userAttribute(p.Index, attrPassword, *p.Password))
		}
		if p.Privilege != nil {
			comp.Attributes = append(comp.Attributes, userAttribute(p.Index, attrPrivilege, p.Privilege.Value()))
		}
		if p.Enabled != nil {
			v := valueDisabled
			if *p.Enabled {
				v = valueEnabled
			}
			comp.Attributes = append(comp.Attributes, userAttribute(p.Index, attrEnable, v))
		}
	}

	doc := SystemConfiguration{Components: []Component{comp}}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rendering import profile: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
