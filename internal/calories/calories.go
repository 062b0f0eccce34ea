// Package calories derives BMR, TDEE and the daily calorie target from a
// runner's profile. All arithmetic is decimal so stored targets match
// exactly across recomputations.
package calories

import (
	"github.com/hashicorp/go-set/v3"
	"github.com/shopspring/decimal"
)

// Allowed profile enum values.
var (
	Genders     = set.From([]string{"male", "female", "other"})
	Frequencies = set.From([]string{"1-2", "3-4", "5-6", "7+"})
	Intensities = set.From([]string{"easy", "moderate", "hard", "very_hard"})
	Goals       = set.From([]string{"deficit", "performance", "bulking"})
)

// BMR implements the Mifflin-St Jeor equation.
func BMR(gender string, weightKG, heightCM float64, age int) decimal.Decimal {
	bmr := 10*weightKG + 6.25*heightCM - 5*float64(age)
	if gender == "male" {
		bmr += 5
	} else {
		bmr -= 161
	}
	return decimal.NewFromFloat(bmr).Round(2)
}

type activityKey struct {
	frequency string
	intensity string
}

var activityMultipliers = map[activityKey]decimal.Decimal{
	{"1-2", "easy"}:      decimal.RequireFromString("1.375"),
	{"1-2", "moderate"}:  decimal.RequireFromString("1.40"),
	{"1-2", "hard"}:      decimal.RequireFromString("1.45"),
	{"1-2", "very_hard"}: decimal.RequireFromString("1.50"),
	{"3-4", "easy"}:      decimal.RequireFromString("1.55"),
	{"3-4", "moderate"}:  decimal.RequireFromString("1.60"),
	{"3-4", "hard"}:      decimal.RequireFromString("1.65"),
	{"3-4", "very_hard"}: decimal.RequireFromString("1.725"),
	{"5-6", "easy"}:      decimal.RequireFromString("1.65"),
	{"5-6", "moderate"}:  decimal.RequireFromString("1.725"),
	{"5-6", "hard"}:      decimal.RequireFromString("1.80"),
	{"5-6", "very_hard"}: decimal.RequireFromString("1.90"),
	{"7+", "easy"}:       decimal.RequireFromString("1.725"),
	{"7+", "moderate"}:   decimal.RequireFromString("1.80"),
	{"7+", "hard"}:       decimal.RequireFromString("1.90"),
	{"7+", "very_hard"}:  decimal.RequireFromString("1.95"),
}

var defaultMultiplier = decimal.RequireFromString("1.55")

func TDEE(bmr decimal.Decimal, frequency, intensity string) decimal.Decimal {
	multiplier, ok := activityMultipliers[activityKey{frequency, intensity}]
	if !ok {
		multiplier = defaultMultiplier
	}
	return bmr.Mul(multiplier).Round(2)
}

var goalModifiers = map[string]decimal.Decimal{
	"deficit":     decimal.NewFromInt(-400),
	"performance": decimal.NewFromInt(0),
	"bulking":     decimal.NewFromInt(400),
}

var intakeFloors = map[string]decimal.Decimal{
	"male":   decimal.NewFromInt(1500),
	"female": decimal.NewFromInt(1200),
}

var (
	longRunDeficitCap = decimal.NewFromInt(-200)
	two               = decimal.NewFromInt(2)
	defaultFloor      = decimal.NewFromInt(1200)
)

// DailyTarget applies the goal modifier with the safety rules:
// no aggressive deficit on long-run days (cap at -200), halve the deficit
// on >60km weeks, never go below the intake floor.
func DailyTarget(tdee decimal.Decimal, goal, gender string, isLongRunDay bool, weeklyMileageKM float64) decimal.Decimal {
	modifier, ok := goalModifiers[goal]
	if !ok {
		modifier = decimal.Zero
	}

	if isLongRunDay && goal == "deficit" {
		if modifier.LessThan(longRunDeficitCap) {
			modifier = longRunDeficitCap
		}
	}

	if weeklyMileageKM > 60 && goal == "deficit" {
		modifier = modifier.Div(two)
	}

	target := tdee.Add(modifier)

	floor, ok := intakeFloors[gender]
	if !ok {
		floor = defaultFloor
	}

	if target.LessThan(floor) {
		target = floor
	}
	return target.Round(2)
}
