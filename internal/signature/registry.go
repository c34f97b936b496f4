package signature

// DefaultProducts returns the built-in recording and streaming tools.
func DefaultProducts() []Product {
	return []Product{
		{ID: "obs", Name: "OBS Studio", Executables: []string{"obs64.exe", "obs32.exe", "obs.exe"}},
		{ID: "bandicam", Name: "Bandicam", Executables: []string{"bandicam.exe", "bdcam.exe"}},
		{ID: "camtasia", Name: "Camtasia", Executables: []string{"camtasia.exe", "camtasiastudio.exe"}},
		{ID: "screenrec", Name: "ScreenRec", Executables: []string{"screenrec.exe", "screenrecorder.exe"}},
		{ID: "fraps", Name: "Fraps", Executables: []string{"fraps.exe"}},
		// GeForce Experience overlay
		{ID: "nvidia", Name: "NVIDIA Share", Executables: []string{"nvidia-share.exe"}},
		{ID: "xsplit", Name: "XSplit", Executables: []string{"xsplit.broadcaster.exe", "xsplit.gamecaster.exe"}},
		{ID: "action", Name: "Action! Screen Recorder", Executables: []string{"action.exe"}},
		{ID: "movavi", Name: "Movavi Screen Recorder", Executables: []string{"movavi-screen-recorder.exe"}},
		{ID: "snagit", Name: "Snagit", Executables: []string{"snagit32.exe", "snagiteditor.exe"}},
		{ID: "loom", Name: "Loom", Executables: []string{"loom.exe"}},
		// Screen sharing counts as capture.
		{ID: "zoom", Name: "Zoom", Executables: []string{"zoom.exe"}},
	}
}

// DefaultTable returns the table loaded once at process start.
func DefaultTable() *Table {
	return NewTable(DefaultProducts()...)
}

// Lookup returns the product that owns a signature, if any.
func (t *Table) Lookup(sig string) (Product, bool) {
	key := Strip(sig)
	for _, p := range t.products {
		for _, exe := range p.Executables {
			if Strip(exe) == key {
				return p, true
			}
		}
	}
	return Product{}, false
}
