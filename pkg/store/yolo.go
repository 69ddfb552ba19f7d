package store

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/image-annotator/pkg/types"
)

// ParseYOLO reads "class x y w h" lines. Lines with fewer than five fields or
// unparsable numbers are skipped and logged.
func ParseYOLO(r io.Reader, logger logrus.FieldLogger) ([]types.BoundingBox, error) {
	boxes := []types.BoundingBox{}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		box, err := parseYOLOLine(fields)
		if err != nil {
			logger.WithFields(logrus.Fields{"line": line, "error": err}).Warn("skipping annotation line")
			continue
		}
		boxes = append(boxes, box)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read annotations: %w", err)
	}
	return boxes, nil
}

func parseYOLOLine(fields []string) (types.BoundingBox, error) {
	if len(fields) < 5 {
		return types.BoundingBox{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}
	class, err := strconv.Atoi(fields[0])
	if err != nil {
		return types.BoundingBox{}, fmt.Errorf("bad class %q", fields[0])
	}
	var v [4]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return types.BoundingBox{}, fmt.Errorf("bad coordinate %q", fields[i+1])
		}
	}
	return types.BoundingBox{X: v[0], Y: v[1], W: v[2], H: v[3], Class: class}, nil
}

// WriteYOLO writes one "class x y w h" line per box
func WriteYOLO(w io.Writer, boxes []types.BoundingBox) error {
	bw := bufio.NewWriter(w)
	for _, b := range boxes {
		_, err := fmt.Fprintf(bw, "%d %s %s %s %s\n", b.Class,
			formatCoord(b.X), formatCoord(b.Y), formatCoord(b.W), formatCoord(b.H))
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
