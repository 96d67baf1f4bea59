package assemble

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"workout-import/internal/models"
)

var sportLabels = map[models.Sport]string{
	models.SportRun:      "бег",
	models.SportRide:     "велосипед",
	models.SportWalk:     "ходьба",
	models.SportHike:     "поход",
	models.SportSwim:     "плавание",
	models.SportRow:      "гребля",
	models.SportStrength: "силовая тренировка",
	models.SportYoga:     "йога",
	models.SportAerobics: "аэробика",
	models.SportCrossfit: "кроссфит",
	models.SportPilates:  "пилатес",
	models.SportOther:    "тренировка",
}

// Name builds the display name, e.g. "Бег 8 км" or "Ходьба 3.4 км в помещении".
// Without a distance it falls back to the sport label and the start date.
func Name(sport models.Sport, distanceM *int, subSport *string, hasGPS *bool, start *time.Time) string {
	label, ok := sportLabels[sport]
	if !ok {
		label = sportLabels[models.SportOther]
	}

	dist := formatDistance(distanceM)
	if dist == "" {
		if start != nil {
			return capitalize(label + " " + start.UTC().Format("02.01.06"))
		}
		return capitalize(joinNonEmpty(label, contextSuffix(subSport, hasGPS)))
	}

	return capitalize(joinNonEmpty(label, dist, contextSuffix(subSport, hasGPS)))
}

func formatDistance(distanceM *int) string {
	if distanceM == nil || *distanceM <= 0 {
		return ""
	}
	m := *distanceM
	if m < 1000 {
		return fmt.Sprintf("%d м", m)
	}
	km := float64(m) / 1000
	r1 := math.Round(km*10) / 10
	if math.Abs(r1-math.Round(km)) < 0.05 {
		return fmt.Sprintf("%d км", int(math.Round(km)))
	}
	return fmt.Sprintf("%.1f км", r1)
}

func contextSuffix(subSport *string, hasGPS *bool) string {
	s := ""
	if subSport != nil {
		s = strings.ToLower(*subSport)
	}
	switch {
	case strings.Contains(s, "track"):
		return "на стадионе"
	case strings.Contains(s, "treadmill"), hasGPS != nil && !*hasGPS:
		return "в помещении"
	}
	return ""
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
