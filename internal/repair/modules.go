package repair

import (
	"context"
	"fmt"

	"github.com/verifix-dev/verifix/internal/infer"
	"github.com/verifix-dev/verifix/pkg/models"
)

// inferenceModule is a Module backed by a generative inference call. All
// specialized modules share this implementation and differ only in their
// kind binding and marker permission; the prompt builder injects per-kind
// guidance.
type inferenceModule struct {
	name            string
	kinds           map[models.ErrorKind]bool
	backend         infer.Backend
	resolvesMarkers bool
	syntax          bool
}

// NewInferenceModule creates a module that repairs the given kinds through
// the inference backend.
func NewInferenceModule(name string, backend infer.Backend, kinds ...models.ErrorKind) Module {
	kindSet := make(map[models.ErrorKind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}
	return &inferenceModule{
		name:    name,
		kinds:   kindSet,
		backend: backend,
	}
}

// NewObligationModule creates a module permitted to discharge
// outstanding-work markers while repairing the given kinds.
func NewObligationModule(name string, backend infer.Backend, kinds ...models.ErrorKind) Module {
	m := NewInferenceModule(name, backend, kinds...).(*inferenceModule)
	m.resolvesMarkers = true
	return m
}

// NewGenericModule creates the fallback module used for kinds with no bound
// module, including KindOther.
func NewGenericModule(backend infer.Backend) Module {
	return &inferenceModule{
		name:    "generic",
		kinds:   nil, // bound explicitly as the registry fallback
		backend: backend,
	}
}

// NewSyntaxModule creates the module for the generic syntax path taken when
// the artifact does not compile and no classified failures exist.
func NewSyntaxModule(backend infer.Backend) Module {
	return &inferenceModule{
		name:    "syntax",
		kinds:   nil,
		backend: backend,
		syntax:  true,
	}
}

func (m *inferenceModule) Name() string { return m.name }

func (m *inferenceModule) Handles(kind models.ErrorKind) bool {
	return m.kinds[kind]
}

func (m *inferenceModule) ResolvesMarkers() bool { return m.resolvesMarkers }

func (m *inferenceModule) Repair(ctx context.Context, input Input) (string, error) {
	pc := infer.PromptContext{
		Code:          input.Code,
		Failure:       input.Failure,
		RawOutput:     input.RawOutput,
		PriorFailures: input.PriorFailures,
		Knowledge:     input.Knowledge,
	}

	var prompt string
	if m.syntax || input.Failure == nil {
		prompt = infer.BuildSyntaxRepairPrompt(pc)
	} else {
		prompt = infer.BuildRepairPrompt(pc)
	}

	response, err := m.backend.Infer(ctx, infer.Request{
		System: infer.SystemPrompt(),
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}

	code := infer.ExtractCode(response)
	if code == "" {
		return "", fmt.Errorf("module %s: response contains no code", m.name)
	}
	return code, nil
}

// DefaultModules returns the standard module set, one module per family of
// related error kinds. Registration order is deterministic.
func DefaultModules(backend infer.Backend) []Module {
	return []Module{
		NewInferenceModule("types", backend,
			models.KindTypeMismatch,
			models.KindTypeAnnotationMissing),
		NewInferenceModule("bounds", backend,
			models.KindPreconditionLengthFail,
			models.KindArithmeticOverflow),
		NewInferenceModule("invariants", backend,
			models.KindInvariantFailEntry,
			models.KindInvariantFailExit,
			models.KindConstructorInvariant),
		NewInferenceModule("termination", backend,
			models.KindDecreasesFail),
		NewInferenceModule("resolution", backend,
			models.KindMissingImportOrImpl,
			models.KindModeError,
			models.KindPrivateFieldAccess),
		NewObligationModule("proofs", backend,
			models.KindAssertionFail,
			models.KindPreconditionFail,
			models.KindPostconditionFail),
		NewInferenceModule("borrows", backend,
			models.KindStaleReferenceError),
	}
}
