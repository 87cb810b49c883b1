package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	colorCyan  = lipgloss.Color("36")
	colorGreen = lipgloss.Color("35")
	colorGray  = lipgloss.Color("245")
	colorWhite = lipgloss.Color("255")

	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	styleKey     = lipgloss.NewStyle().Foreground(colorGray).Width(12)
	styleValue   = lipgloss.NewStyle().Foreground(colorWhite)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
)

// printer formats counts with thousands separators.
var printer = message.NewPrinter(language.English)

func printTitle(w io.Writer, title string) {
	fmt.Fprintln(w, styleTitle.Render(title))
}

func printKV(w io.Writer, key, value string) {
	fmt.Fprintln(w, styleKey.Render(key)+" "+styleValue.Render(value))
}

func printDone(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, styleSuccess.Render("✓")+" "+printer.Sprintf(format, args...))
}

// hexColor formats a color with channels in [0,1] as #rrggbb.
func hexColor(c [3]float64) string {
	return fmt.Sprintf("#%02x%02x%02x", unit8(c[0]), unit8(c[1]), unit8(c[2]))
}

func unit8(v float64) uint8 {
	return uint8(min(max(v, 0), 1)*255 + 0.5)
}

// swatch renders a colored block followed by the hex value.
func swatch(c [3]float64) string {
	hex := hexColor(c)
	block := lipgloss.NewStyle().Background(lipgloss.Color(hex)).Render("      ")
	return block + " " + hex
}

// bar renders v in [0,1] as a bar of width cells.
func bar(v float64, width int) string {
	n := int(min(max(v, 0), 1)*float64(width) + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("·", width-n)
}
