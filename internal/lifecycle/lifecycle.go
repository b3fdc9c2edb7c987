// Package lifecycle is the import shipping pipeline:
//
//	planejamento -> producao -> entregue_agente -> transporte_maritimo|transporte_aereo
//	  -> desembaraco -> transporte_nacional -> concluido
//
// cancelado is reachable from every stage except concluido.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iurnickita/importcredit/internal/model"
)

var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrImportNotEditable      = errors.New("import is not editable")
	ErrUnknownTransportMethod = errors.New("unknown transport method")
)

// InvalidTransitionError names the rejected move and the one forward stage that
// would have been accepted, if any.
type InvalidTransitionError struct {
	ImportID string
	From     model.Stage
	To       model.Stage
	Allowed  model.Stage
}

func (e *InvalidTransitionError) Error() string {
	if e.Allowed == "" {
		return fmt.Sprintf("import %s: cannot move from %s to %s", e.ImportID, e.From, e.To)
	}
	return fmt.Sprintf("import %s: cannot move from %s to %s, next stage is %s", e.ImportID, e.From, e.To, e.Allowed)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type NotEditableError struct {
	ImportID string
	Stage    model.Stage
}

func (e *NotEditableError) Error() string {
	return fmt.Sprintf("import %s is in stage %s, only %s imports can be edited", e.ImportID, e.Stage, model.StagePlanning)
}

func (e *NotEditableError) Is(target error) bool { return target == ErrImportNotEditable }

// StatusOf maps a stage to the coarse import status.
func StatusOf(stage model.Stage) model.ImportStatus {
	switch stage {
	case model.StagePlanning:
		return model.ImportStatusPlanning
	case model.StageCompleted:
		return model.ImportStatusCompleted
	case model.StageCancelled:
		return model.ImportStatusCancelled
	default:
		return model.ImportStatusActive
	}
}

// IsTerminal reports whether no transition leaves stage.
func IsTerminal(stage model.Stage) bool {
	return stage == model.StageCompleted || stage == model.StageCancelled
}

// TransportStage is the shipping branch chosen by the transport method.
func TransportStage(method model.TransportMethod) (model.Stage, error) {
	switch method {
	case model.TransportMaritime:
		return model.StageMaritimeShipping, nil
	case model.TransportAir:
		return model.StageAirShipping, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTransportMethod, method)
	}
}

// Next returns the forward stage after the import's current one, or "" when
// the import is terminal.
func Next(imp model.Import) (model.Stage, error) {
	switch imp.Stage {
	case model.StagePlanning:
		return model.StageProduction, nil
	case model.StageProduction:
		return model.StageDeliveredAgent, nil
	case model.StageDeliveredAgent:
		return TransportStage(imp.TransportMethod)
	case model.StageMaritimeShipping, model.StageAirShipping:
		return model.StageCustoms, nil
	case model.StageCustoms:
		return model.StageDomesticShipping, nil
	case model.StageDomesticShipping:
		return model.StageCompleted, nil
	case model.StageCompleted, model.StageCancelled:
		return "", nil
	default:
		return "", fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, imp.Stage)
	}
}

// CanTransition checks a move without applying it.
func CanTransition(imp model.Import, to model.Stage) error {
	next, err := Next(imp)
	if err != nil {
		return err
	}
	if to == model.StageCancelled && imp.Stage != model.StageCompleted && imp.Stage != model.StageCancelled {
		return nil
	}
	if next != "" && to == next {
		return nil
	}
	return &InvalidTransitionError{ImportID: imp.ID, From: imp.Stage, To: to, Allowed: next}
}

// Transition moves imp to the new stage and returns the timeline entry that
// records it. imp is changed only on success.
func Transition(imp *model.Import, to model.Stage, actorID string, note string, now time.Time) (model.TimelineEntry, error) {
	if err := CanTransition(*imp, to); err != nil {
		return model.TimelineEntry{}, err
	}
	entry := model.TimelineEntry{
		ID:            uuid.NewString(),
		ImportID:      imp.ID,
		PreviousStage: imp.Stage,
		NewStage:      to,
		ActorID:       actorID,
		Timestamp:     now,
		Note:          note,
	}
	imp.Stage = to
	imp.Status = StatusOf(to)
	imp.UpdatedAt = now
	return entry, nil
}

// Created is the first timeline entry of a new import.
func Created(imp model.Import, actorID string, now time.Time) model.TimelineEntry {
	return model.TimelineEntry{
		ID:        uuid.NewString(),
		ImportID:  imp.ID,
		NewStage:  imp.Stage,
		ActorID:   actorID,
		Timestamp: now,
		Note:      "import created",
	}
}

// CheckEditable allows product and value edits in planejamento only.
func CheckEditable(imp model.Import) error {
	if imp.Stage != model.StagePlanning {
		return &NotEditableError{ImportID: imp.ID, Stage: imp.Stage}
	}
	return nil
}
