package highlight

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

var (
	lexer     chroma.Lexer
	formatter chroma.Formatter
	style     *chroma.Style
)

func init() {
	lexer = lexers.Get("json")
	formatter = formatters.Get("terminal256")
	style = styles.Get("monokai")
}

// JSON returns the input with ANSI terminal syntax highlighting
// applied, for previewing unpacked entity rows. On error or empty
// input, the original string is returned unchanged.
func JSON(s string) string {
	if s == "" {
		return s
	}

	iterator, err := lexer.Tokenise(nil, s)
	if err != nil {
		return s
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return s
	}

	return strings.TrimRight(buf.String(), "\n")
}

var (
	offsetStyle = lipgloss.NewStyle().Faint(true)
	byteStyle   = lipgloss.NewStyle().Bold(true)
	asciiStyle  = lipgloss.NewStyle().Faint(true)
)

// HexDump renders raw bytes as a canonical 16-byte-per-line hex dump
// with ANSI highlighting: the leading offset and trailing ASCII
// gutter are dim, the hex bytes are bold. Used to preview raw
// key/value frames that aren't valid packed entities.
func HexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}

	var lines []string
	for offset := 0; offset < len(data); offset += 16 {
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		lines = append(lines, hexLine(offset, data[offset:end]))
	}
	return strings.Join(lines, "\n")
}

func hexLine(offset int, chunk []byte) string {
	var hexParts []string
	ascii := make([]byte, len(chunk))
	for i, b := range chunk {
		hexParts = append(hexParts, fmt.Sprintf("%02x", b))
		if b >= 0x20 && b < 0x7f {
			ascii[i] = b
		} else {
			ascii[i] = '.'
		}
	}

	offsetStr := offsetStyle.Render(fmt.Sprintf("%08x", offset))
	hexStr := byteStyle.Render(strings.Join(hexParts, " "))
	asciiStr := asciiStyle.Render("|" + string(ascii) + "|")
	return offsetStr + "  " + hexStr + "  " + asciiStr
}
