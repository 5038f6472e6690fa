package viewer

import "fmt"

// Panel is the static content of the control panel
type Panel struct {
	Title        string   `json:"title"`
	Instructions string   `json:"instructions"`
	DateLabel    string   `json:"dateLabel"`
	Placeholder  string   `json:"placeholder"`
	Items        []string `json:"items"`
	Info         string   `json:"info"`
	Legend       string   `json:"legend"`
	ExportLabel  string   `json:"exportLabel"`
}

// Panel returns the control panel for the session. Items is empty until Start
// has built the catalog.
func (v *Viewer) Panel() Panel {
	p := Panel{
		Title:        v.settings.Title,
		Instructions: "choose a date",
		DateLabel:    "Select Image Date:",
		Placeholder:  "No images found",
		Items:        []string{},
		Info: fmt.Sprintf("Resolution: %gm per pixel\n"+
			"Earthquake: Feb 6, 2023\n"+
			"Layers: Toggle in Layers panel", v.settings.Scale),
		Legend: "Layers\n" +
			"• Enhanced: Best visual clarity\n" +
			"• Standard: Original colors\n" +
			"• False Colour: Vegetation analysis",
		ExportLabel: "Export image",
	}
	if v.catalog != nil && !v.catalog.Empty() {
		p.Items = v.catalog.Labels()
		p.Placeholder = "Choose a date..."
	}
	return p
}
