package terminal_test

import (
	"strconv"
	"strings"
	"testing"
)

// screen is a minimal VT100 model covering the sequences the printer emits.
// Line feeds behave as CR LF, as they do on a tty with ONLCR set.
type screen struct {
	t        *testing.T
	rows     [][]rune
	width    int
	row, col int
	savedRow int
	savedCol int
}

func newScreen(t *testing.T, height, width int) *screen {
	s := &screen{t: t, width: width}
	for i := 0; i < height; i++ {
		s.rows = append(s.rows, s.blank())
	}
	return s
}

func (s *screen) blank() []rune {
	r := make([]rune, s.width)
	for i := range r {
		r[i] = ' '
	}
	return r
}

func (s *screen) line(i int) string {
	return strings.TrimRight(string(s.rows[i]), " ")
}

func (s *screen) cursor() (int, int) {
	return s.row, s.col
}

func (s *screen) write(data string) {
	in := []rune(data)
	for i := 0; i < len(in); i++ {
		switch c := in[i]; c {
		case '\x1b':
			i++
			if i >= len(in) {
				s.t.Fatalf("truncated escape sequence in %q", data)
			}
			switch in[i] {
			case '7':
				s.savedRow, s.savedCol = s.row, s.col
			case '8':
				s.row, s.col = s.savedRow, s.savedCol
			case '[':
				j := i + 1
				for j < len(in) && (in[j] == ';' || (in[j] >= '0' && in[j] <= '9')) {
					j++
				}
				if j >= len(in) {
					s.t.Fatalf("truncated CSI sequence in %q", data)
				}
				s.csi(string(in[i+1:j]), in[j])
				i = j
			default:
				s.t.Fatalf("unsupported escape %q", string(in[i]))
			}
		case '\r':
			s.col = 0
		case '\n':
			s.col = 0
			s.row++
			if s.row == len(s.rows) {
				s.rows = append(s.rows[1:], s.blank())
				s.row = len(s.rows) - 1
			}
		default:
			if s.col < s.width {
				s.rows[s.row][s.col] = c
				s.col++
			}
		}
	}
}

func (s *screen) csi(params string, final rune) {
	n := 1
	if params != "" {
		v, err := strconv.Atoi(params)
		if err != nil {
			s.t.Fatalf("unsupported CSI params %q", params)
		}
		n = v
	}
	switch final {
	case 'A':
		s.row = max(s.row-max(n, 1), 0)
	case 'B':
		s.row = min(s.row+max(n, 1), len(s.rows)-1)
	case 'L':
		n = max(n, 1)
		for k := 0; k < n; k++ {
			rows := append([][]rune{}, s.rows[:s.row]...)
			rows = append(rows, s.blank())
			rows = append(rows, s.rows[s.row:len(s.rows)-1]...)
			s.rows = rows
		}
		s.col = 0
	case 'K':
		if params == "" {
			n = 0
		}
		switch n {
		case 0:
			for k := s.col; k < s.width; k++ {
				s.rows[s.row][k] = ' '
			}
		case 1:
			for k := 0; k <= s.col && k < s.width; k++ {
				s.rows[s.row][k] = ' '
			}
		case 2:
			s.rows[s.row] = s.blank()
		}
	default:
		s.t.Fatalf("unsupported CSI final %q", string(final))
	}
}
