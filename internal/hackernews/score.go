package hackernews

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
)

// LooseInt decodes a number or a numeric string. Anything that does not
// start with digits decodes to 0, so it falls below any positive threshold.
type LooseInt int

func (n *LooseInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = LooseInt(leadingInt(s))
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		// booleans, objects and arrays carry no score
		*n = 0
		return nil
	}
	if math.IsNaN(f) || math.Abs(f) > math.MaxInt32 {
		*n = 0
		return nil
	}
	*n = LooseInt(int(f))
	return nil
}

// leadingInt parses an optional sign followed by digits, ignoring the rest.
func leadingInt(s string) int {
	s = strings.TrimLeft(s, " \t\r\n")
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	v := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' && i > 0 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		if v > (math.MaxInt32-int(c-'0'))/10 {
			break
		}
		v = v*10 + int(c-'0')
	}
	if neg {
		return -v
	}
	return v
}
