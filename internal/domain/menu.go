package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

const defaultSectionName = "Uncategorized"

type MenuItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type MenuSection struct {
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

// Menu is either a list of sections or, after exhausted retries, an error marker.
type Menu struct {
	Sections []MenuSection `json:"sections,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func MenuError(message string) Menu {
	return Menu{Error: message}
}

func (m Menu) IsError() bool {
	return m.Error != ""
}

// MarshalJSON writes {"error": ...} for markers and {"sections": [...]} otherwise.
func (m Menu) MarshalJSON() ([]byte, error) {
	if m.IsError() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{m.Error})
	}
	sections := m.Sections
	if sections == nil {
		sections = []MenuSection{}
	}
	return json.Marshal(struct {
		Sections []MenuSection `json:"sections"`
	}{sections})
}

// Menus maps venue name to its menu.
type Menus map[string]Menu

// RawMenu is the loosely shaped menu the language model is asked to produce.
type RawMenu struct {
	Sections []RawMenuSection `json:"sections"`
	Error    string           `json:"error"`
}

type RawMenuSection struct {
	SectionName string            `json:"section_name"`
	Items       []json.RawMessage `json:"items"`
}

type rawMenuItem struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// Standardize converts model output into a Menu. Items that are not objects are
// skipped, missing fields become "", unnamed sections become "Uncategorized" and
// sections left without items are dropped. An error in the raw menu is passed through.
func (r RawMenu) Standardize() Menu {
	if r.Error != "" {
		return MenuError(r.Error)
	}

	menu := Menu{Sections: []MenuSection{}}
	for _, section := range r.Sections {
		name := strings.TrimSpace(section.SectionName)
		if name == "" {
			name = defaultSectionName
		}

		std := MenuSection{Name: name, Items: []MenuItem{}}
		for _, raw := range section.Items {
			if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
				continue
			}
			var item rawMenuItem
			if err := json.Unmarshal(raw, &item); err != nil {
				continue
			}
			std.Items = append(std.Items, MenuItem{
				Name:        deref(item.Name),
				Description: deref(item.Description),
			})
		}
		if len(std.Items) > 0 {
			menu.Sections = append(menu.Sections, std)
		}
	}
	return menu
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
