package decode

import (
	"strings"
	"unicode"

	"workout-import/internal/models"
)

var sportAliases = map[string]models.Sport{
	"running":           models.SportRun,
	"run":               models.SportRun,
	"cycling":           models.SportRide,
	"bike":              models.SportRide,
	"biking":            models.SportRide,
	"ride":              models.SportRide,
	"walking":           models.SportWalk,
	"walk":              models.SportWalk,
	"hiking":            models.SportHike,
	"hike":              models.SportHike,
	"swimming":          models.SportSwim,
	"swim":              models.SportSwim,
	"rowing":            models.SportRow,
	"row":               models.SportRow,
	"strength_training": models.SportStrength,
	"strength":          models.SportStrength,
	"yoga":              models.SportYoga,
	"aerobics":          models.SportAerobics,
	"crossfit":          models.SportCrossfit,
	"pilates":           models.SportPilates,
}

// MapSport maps a vendor sport name onto the normalised vocabulary.
// Anything unrecognised is SportOther.
func MapSport(s string) models.Sport {
	if sport, ok := sportAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return sport
	}
	return models.SportOther
}

// snakeCase converts FIT enum names such as "StrengthTraining" to "strength_training".
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// enumName normalises a FIT enum's String() form, dropping the type prefix
// some generated names carry.
func enumName(s, prefix string) string {
	return strings.TrimPrefix(snakeCase(s), prefix)
}
