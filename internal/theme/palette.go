package theme

// Palette holds ANSI escape sequences for terminal rendering.
type Palette struct {
	Accent string
	Muted  string
	Error  string
	Ok     string
	Reset  string
}

var (
	darkPalette = Palette{
		Accent: "\x1b[96m",
		Muted:  "\x1b[37m",
		Error:  "\x1b[91m",
		Ok:     "\x1b[92m",
		Reset:  "\x1b[0m",
	}
	lightPalette = Palette{
		Accent: "\x1b[34m",
		Muted:  "\x1b[90m",
		Error:  "\x1b[31m",
		Ok:     "\x1b[32m",
		Reset:  "\x1b[0m",
	}
)

func (t Theme) Palette() Palette {
	if t == Dark {
		return darkPalette
	}
	return lightPalette
}

// Plain is used when output is not a terminal.
var Plain = Palette{}
