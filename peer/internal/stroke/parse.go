package stroke

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sketchrelay/sketchrelay/pkg/types"
)

// ParsePoints parses a whitespace-separated list of "x,y" pairs, the format
// the peer's -draw flag takes.
func ParsePoints(s string) ([]types.Point, error) {
	fields := strings.Fields(s)
	pts := make([]types.Point, 0, len(fields))
	for _, f := range fields {
		xs, ys, ok := strings.Cut(f, ",")
		if !ok {
			return nil, fmt.Errorf("stroke: point %q: want x,y", f)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("stroke: point %q: %w", f, err)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("stroke: point %q: %w", f, err)
		}
		pts = append(pts, types.Point{X: x, Y: y})
	}
	return pts, nil
}
