package services

import (
	"sort"

	"lagflode/canonical"
	"lagflode/models"
)

// ChangeInput ist die Eingabe für DerivePriority.
type ChangeInput struct {
	ChangeType  models.ChangeType
	ContentType canonical.ContentType
}

type contentClass int

const (
	classOther contentClass = iota // Rechtsprechung, unbekannt
	classAgency
	classStatutory
)

// priorityTable[changeType][contentClass]
var priorityTable = map[models.ChangeType][3]models.Priority{
	models.ChangeRepeal:    {models.PriorityMedium, models.PriorityHigh, models.PriorityCritical},
	models.ChangeReplace:   {models.PriorityLow, models.PriorityMedium, models.PriorityHigh},
	models.ChangeAmendment: {models.PriorityLow, models.PriorityMedium, models.PriorityHigh},
	models.ChangeInsert:    {models.PriorityLow, models.PriorityLow, models.PriorityMedium},
	models.ChangeNewLaw:    {models.PriorityLow, models.PriorityLow, models.PriorityMedium},
}

func classify(ct canonical.ContentType) contentClass {
	switch {
	case ct.IsStatutory():
		return classStatutory
	case ct == canonical.AgencyRegulation:
		return classAgency
	}
	return classOther
}

// DerivePriority leitet die Dringlichkeit aus Änderungsart und Inhaltstyp ab.
// Unbekannte Änderungsarten sind LOW.
func DerivePriority(in ChangeInput) models.Priority {
	row, ok := priorityTable[in.ChangeType]
	if !ok {
		return models.PriorityLow
	}
	return row[classify(in.ContentType)]
}

// PriorityWeight liefert das Sortiergewicht, höher ist dringlicher.
func PriorityWeight(p models.Priority) int {
	switch p {
	case models.PriorityCritical:
		return 4
	case models.PriorityHigh:
		return 3
	case models.PriorityMedium:
		return 2
	case models.PriorityLow:
		return 1
	}
	return 0
}

// SortByPriority sortiert absteigend nach abgeleiteter Priorität, bei Gleichstand
// die neuesten zuerst.
func SortByPriority(events []models.ChangeEvent) {
	weight := func(e models.ChangeEvent) int {
		return PriorityWeight(DerivePriority(ChangeInput{ChangeType: e.ChangeType, ContentType: e.ContentType}))
	}
	sort.SliceStable(events, func(i, j int) bool {
		wi, wj := weight(events[i]), weight(events[j])
		if wi != wj {
			return wi > wj
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
}
