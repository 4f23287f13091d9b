package terrain

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	svgNamespace      = "http://www.w3.org/2000/svg"
	sodipodiNamespace = "http://sodipodi.sourceforge.net/DTD/sodipodi-0.dtd"
	gameTagAttr       = "game-tag"
)

// ParseSVG walks an SVG document. Tagged elements are matched by their
// game-tag, everything else by element name.
func ParseSVG(data []byte) (*Map, error) {
	m := &Map{}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "parse svg map")
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch svgTag(el) {
		case "svg":
			m.XSize = svgLength(attr(el, "", "width"))
			m.YSize = svgLength(attr(el, "", "height"))
		case "rect":
			w, err := rectFromSVG(el)
			if err != nil {
				return nil, err
			}
			m.Walls = append(m.Walls, w)
		case "engine-force-powerup":
			cx, errX := strconv.ParseFloat(attr(el, sodipodiNamespace, "cx"), 64)
			cy, errY := strconv.ParseFloat(attr(el, sodipodiNamespace, "cy"), 64)
			if errX != nil || errY != nil {
				return nil, errors.New("engine-force-powerup without sodipodi:cx/cy")
			}
			m.PowerUps = append(m.PowerUps, PowerUp{Type: PowerUpEngineForce, X: &cx, Y: &cy})
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func svgTag(el xml.StartElement) string {
	if tag := attr(el, "", gameTagAttr); tag != "" {
		return tag
	}
	if el.Name.Space == svgNamespace || el.Name.Space == "" {
		return el.Name.Local
	}
	return ""
}

func rectFromSVG(el xml.StartElement) (Wall, error) {
	var vals [4]float64
	for i, name := range []string{"x", "y", "width", "height"} {
		v, err := strconv.ParseFloat(attr(el, "", name), 64)
		if err != nil {
			return Wall{}, errors.Wrapf(err, "rect attribute %s", name)
		}
		vals[i] = v
	}
	return Wall{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

func attr(el xml.StartElement, space, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local && a.Name.Space == space {
			return a.Value
		}
	}
	return ""
}

// svgLength parses a plain or px-suffixed length; anything else is 0.
func svgLength(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "px"), 64)
	if err != nil {
		return 0
	}
	return v
}
