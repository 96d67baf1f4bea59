package decode

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"workout-import/internal/models"
)

const earthRadiusM = 6371000

type gpxDocument struct {
	Tracks []struct {
		Type     string `xml:"type"`
		Segments []struct {
			Points []gpxPoint `xml:"trkpt"`
		} `xml:"trkseg"`
	} `xml:"trk"`
}

type gpxPoint struct {
	Lat  string `xml:"lat,attr"`
	Lon  string `xml:"lon,attr"`
	Time string `xml:"time"`
}

type tcxDocument struct {
	Activities []struct {
		Sport string `xml:"Sport,attr"`
		Laps  []struct {
			Tracks []struct {
				Points []tcxPoint `xml:"Trackpoint"`
			} `xml:"Track"`
		} `xml:"Lap"`
	} `xml:"Activities>Activity"`
}

type tcxPoint struct {
	Time     string `xml:"Time"`
	Position struct {
		Lat string `xml:"LatitudeDegrees"`
		Lon string `xml:"LongitudeDegrees"`
	} `xml:"Position"`
}

type trackPoint struct {
	lat, lon float64
	time     time.Time
}

// decodeXML handles both GPX and TCX. The root element decides which, so a
// mislabelled extension still decodes.
func decodeXML(data []byte) (*ParsedActivity, error) {
	root, err := rootElement(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read XML document: %w", err)
	}

	var (
		points []trackPoint
		sport  string
		format Format
	)
	switch root {
	case "gpx":
		var doc gpxDocument
		if err := newXMLDecoder(data).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse GPX: %w", err)
		}
		format = FormatGPX
		for _, trk := range doc.Tracks {
			if sport == "" {
				sport = strings.TrimSpace(trk.Type)
			}
			for _, seg := range trk.Segments {
				for _, pt := range seg.Points {
					points = append(points, newTrackPoint(pt.Lat, pt.Lon, pt.Time))
				}
			}
		}
	case "TrainingCenterDatabase":
		var doc tcxDocument
		if err := newXMLDecoder(data).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse TCX: %w", err)
		}
		format = FormatTCX
		for _, act := range doc.Activities {
			if sport == "" {
				sport = strings.TrimSpace(act.Sport)
			}
			for _, lap := range act.Laps {
				for _, trk := range lap.Tracks {
					for _, pt := range trk.Points {
						// Indoor laps and GPS dropouts leave trackpoints without a position.
						if strings.TrimSpace(pt.Position.Lat) == "" || strings.TrimSpace(pt.Position.Lon) == "" {
							continue
						}
						points = append(points, newTrackPoint(pt.Position.Lat, pt.Position.Lon, pt.Time))
					}
				}
			}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected XML root %q", ErrUnsupportedFormat, root)
	}

	if len(points) == 0 {
		return nil, ErrNoActivity
	}

	return summariseTrack(format, sport, points), nil
}

func summariseTrack(format Format, sport string, points []trackPoint) *ParsedActivity {
	p := &ParsedActivity{
		Format: format,
		Sport:  models.SportOther,
		HasGPS: boolPtr(true),
	}
	if sport != "" {
		p.Sport = MapSport(sport)
	}

	first, last := points[0], points[len(points)-1]
	if !first.time.IsZero() {
		p.StartTime = timePtr(first.time.UTC())
	}
	if !first.time.IsZero() && !last.time.IsZero() {
		d := last.time.Sub(first.time).Seconds()
		p.DurationSec = intPtr(int(math.Round(math.Max(0, d))))
	}

	var dist float64
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if !validCoord(a) || !validCoord(b) {
			continue
		}
		dist += haversine(a.lat, a.lon, b.lat, b.lon)
	}
	if dist > 0 {
		p.DistanceM = intPtr(int(math.Round(dist)))
		if p.DurationSec != nil && *p.DurationSec > 0 {
			p.AvgSpeedMs = floatPtr(dist / float64(*p.DurationSec))
		}
	}

	return p
}

func newTrackPoint(lat, lon, ts string) trackPoint {
	pt := trackPoint{lat: parseCoord(lat), lon: parseCoord(lon)}
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(ts)); err == nil {
		pt.time = t
	}
	return pt
}

func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func validCoord(p trackPoint) bool {
	return isFinite(p.lat) && isFinite(p.lon)
}

// haversine returns the great-circle distance in metres.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// newXMLDecoder accepts documents declaring a non-UTF-8 encoding such as
// ISO-8859-1 or windows-1251.
func newXMLDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

func rootElement(data []byte) (string, error) {
	dec := newXMLDecoder(data)
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrNoActivity
			}
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}
