package model

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Dimension is an axis along which records can be laterally connected.
// Strengths are not comparable across dimensions.
type Dimension string

const (
	DimTopic      Dimension = "topic"
	DimEmotion    Dimension = "emotional-tone"
	DimTemporal   Dimension = "temporal-proximity"
	DimActor      Dimension = "actor"
	DimOutcome    Dimension = "outcome"
	DimRecurrence Dimension = "recurrence"
	DimDomain     Dimension = "domain"
)

// ValidDimensions are the allowed connection dimensions.
var ValidDimensions = map[Dimension]bool{
	DimTopic:      true,
	DimEmotion:    true,
	DimTemporal:   true,
	DimActor:      true,
	DimOutcome:    true,
	DimRecurrence: true,
	DimDomain:     true,
}

// AllDimensions returns every dimension in a stable order.
func AllDimensions() []Dimension {
	return []Dimension{
		DimTopic, DimEmotion, DimTemporal, DimActor,
		DimOutcome, DimRecurrence, DimDomain,
	}
}

// ParseDimension converts a string flag value into a Dimension. Accepts a
// few spelling variants ("temporal proximity", "emotion").
func ParseDimension(s string) (Dimension, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
	switch norm {
	case "emotion", "tone":
		norm = string(DimEmotion)
	case "temporal", "time":
		norm = string(DimTemporal)
	}
	d := Dimension(norm)
	if !ValidDimensions[d] {
		return "", goerr.New("unknown dimension", goerr.V("dimension", s))
	}
	return d, nil
}
