package preview

import (
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCode is a square module matrix, true for dark modules.
type QRCode struct {
	Modules     [][]bool
	Placeholder bool
}

// Rows encodes the matrix as strings of '1' (dark) and '0' (light), the
// form sent to the browser.
func (q QRCode) Rows() []string {
	rows := make([]string, len(q.Modules))
	var b strings.Builder
	for i, row := range q.Modules {
		b.Reset()
		for _, dark := range row {
			if dark {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
		rows[i] = b.String()
	}
	return rows
}

// EncodeQR encodes url. An empty url, or one that cannot be encoded, gets
// the fixed placeholder pattern.
func EncodeQR(url string) (QRCode, error) {
	if url == "" {
		return PlaceholderQR(), nil
	}
	code, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return PlaceholderQR(), err
	}
	code.DisableBorder = true
	return QRCode{Modules: code.Bitmap()}, nil
}

// PlaceholderQR returns a 21x21 pattern with the three finder squares and
// a fixed checker fill. It is not a scannable code.
func PlaceholderQR() QRCode {
	const n = 21
	m := make([][]bool, n)
	for y := range m {
		m[y] = make([]bool, n)
		for x := range m[y] {
			m[y][x] = (x*7+y*3)%5 < 2
		}
	}
	for _, origin := range [][2]int{{0, 0}, {n - 7, 0}, {0, n - 7}} {
		drawFinder(m, origin[0], origin[1])
	}
	return QRCode{Modules: m, Placeholder: true}
}

func drawFinder(m [][]bool, ox, oy int) {
	for y := -1; y <= 7; y++ {
		for x := -1; x <= 7; x++ {
			px, py := ox+x, oy+y
			if py < 0 || py >= len(m) || px < 0 || px >= len(m) {
				continue
			}
			ring := x == 0 || x == 6 || y == 0 || y == 6
			core := x >= 2 && x <= 4 && y >= 2 && y <= 4
			m[py][px] = (ring || core) && x >= 0 && x <= 6 && y >= 0 && y <= 6
		}
	}
}
