// Package risk defines the ordinal frost-risk classes and the reconciliation
// policy between the classifier and the advisory assessment.
package risk

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Class is an ordinal frost severity. The numeric order is load-bearing:
// reconciliation picks the larger value.
type Class int

const (
	NoRisk   Class = 0
	Risk     Class = 1
	Moderate Class = 2
	Severe   Class = 3
)

// NumClasses is the number of classes the classifier emits probabilities for.
const NumClasses = 4

// Level is the four-level vocabulary shared with the advisory service.
type Level string

const (
	LevelLow      Level = "bajo"
	LevelMedium   Level = "medio"
	LevelHigh     Level = "alto"
	LevelVeryHigh Level = "muy_alto"
)

type classInfo struct {
	name  string
	level Level
	color string
	mark  string
}

var classTable = [NumClasses]classInfo{
	NoRisk:   {name: "Sin Riesgo", level: LevelLow, color: "#10b981", mark: "✓"},
	Risk:     {name: "Riesgo", level: LevelMedium, color: "#f59e0b", mark: "!"},
	Moderate: {name: "Moderada", level: LevelHigh, color: "#ef4444", mark: "!!"},
	Severe:   {name: "Severa", level: LevelVeryHigh, color: "#dc2626", mark: "!!!"},
}

// Valid reports whether c is one of the four classes.
func (c Class) Valid() bool {
	return c >= NoRisk && c <= Severe
}

// Name is the Spanish display name, e.g. "Moderada".
func (c Class) Name() string {
	if !c.Valid() {
		return "Desconocido"
	}
	return classTable[c].name
}

// Level maps the class onto the advisory vocabulary.
func (c Class) Level() Level {
	if !c.Valid() {
		return LevelLow
	}
	return classTable[c].level
}

// Color is the UI color for the class.
func (c Class) Color() string {
	if !c.Valid() {
		return classTable[NoRisk].color
	}
	return classTable[c].color
}

// Mark is the symbolic severity marker used in rich alerts.
func (c Class) Mark() string {
	if !c.Valid() {
		return "?"
	}
	return classTable[c].mark
}

func (c Class) String() string {
	return fmt.Sprintf("%d(%s)", int(c), c.Name())
}

// ParseClass validates an integer class from the classifier.
func ParseClass(v int) (Class, error) {
	c := Class(v)
	if !c.Valid() {
		return NoRisk, fmt.Errorf("risk class %d out of range [0,%d]", v, NumClasses-1)
	}
	return c, nil
}

// ParseLevel maps an advisory level onto a class. Accepts the values
// case-insensitively and with either "_" or " " separators.
func ParseLevel(s string) (Class, bool) {
	norm := Level(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_"))
	for c, info := range classTable {
		if info.level == norm {
			return Class(c), true
		}
	}
	return NoRisk, false
}

// ParseName maps a display name ("Moderada", legacy "Leve") onto a class.
func ParseName(s string) (Class, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sin riesgo", "no helada":
		return NoRisk, true
	case "riesgo", "leve":
		return Risk, true
	case "moderada":
		return Moderate, true
	case "severa":
		return Severe, true
	}
	return NoRisk, false
}

// MarshalJSON encodes the class as its integer value.
func (c Class) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(c))
}
